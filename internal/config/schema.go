package config

// schemaCUE constrains the site value. Modules lists the optional stores
// registered next to core/site.
const schemaCUE = `
#Module: "analytics-4"

#Site: {
	referenceSiteURL: string & =~"^https?://[^/]+"
	apiBase?:         string & =~"^https?://[^/]+"
	modules:          *[] | [...#Module]
	fixtures?:        string & !=""
}
`
