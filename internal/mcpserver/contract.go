package mcpserver

import "github.com/starford/justwrite/internal/resource"

// Collection describes one collection and its field policy.
type Collection struct {
	Name     string   `json:"name"`
	File     string   `json:"file"`
	Required []string `json:"required"`
	Unique   []string `json:"unique"`
	Stamped  bool     `json:"timestamped"`
	TagField string   `json:"tagField,omitempty"`
}

func describe(reg *resource.Registry) []Collection {
	all := reg.All()
	out := make([]Collection, 0, len(all))
	for _, e := range all {
		p := e.Policy()
		c := Collection{
			Name:     e.Name(),
			File:     e.File(),
			Required: p.RequiredFields,
			Unique:   p.UniqueFields,
			Stamped:  p.Timestamp,
			TagField: p.TagField,
		}
		if c.Required == nil {
			c.Required = []string{}
		}
		if c.Unique == nil {
			c.Unique = []string{}
		}
		out = append(out, c)
	}
	return out
}

// RecordFormatContract describes how records are shaped and validated.
const RecordFormatContract = `# Record Format Contract

Each collection is a JSON array of flat objects stored in one file.

## Fields

- ` + "`id`" + ` is assigned by the server on create and never changes.
- ` + "`created`" + ` and ` + "`updated`" + ` are set by the server on timestamped
  collections as ISO-8601 UTC strings with millisecond precision.
- Every other field is free-form JSON.

## Rules

1. **Required fields** must be present and not blank. See the
   ` + "`" + collectionsURI + "`" + ` resource for each collection's list.
2. **Unique fields** may not repeat a value already held by another record.
3. **Replace merges.** Fields you send overwrite existing ones; fields you
   omit are kept.
4. **Filters match exactly.** Strings compare as strings; a string filter
   never matches a numeric field.
5. **Tags** on collections with a tag field are a comma-joined string of tag
   ids, e.g. ` + "`" + `"t1,t2"` + "`" + `. ` + "`list_tagged`" + ` returns records carrying all of
   the requested ids.

## Example

` + "```" + `json
{"title": "Weekly standup", "content": "Notes from Monday.", "tags": "t1,t2"}
` + "```" + `
`
