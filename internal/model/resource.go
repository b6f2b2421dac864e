package model

import (
	"catalog-validation/pkg/utils"
	"encoding/json"
	"strings"
)

const URLTypeUpload = "upload"

// Resource is the subset of a catalog resource this service reads and writes.
type Resource struct {
	ID                  string          `json:"id"`
	PackageID           string          `json:"package_id"`
	Name                string          `json:"name,omitempty"`
	URL                 string          `json:"url"`
	URLType             string          `json:"url_type,omitempty"`
	Format              string          `json:"format"`
	Schema              json.RawMessage `json:"schema,omitempty"`
	ValidationOptions   json.RawMessage `json:"validation_options,omitempty"`
	ValidationStatus    string          `json:"validation_status,omitempty"`
	ValidationTimestamp string          `json:"validation_timestamp,omitempty"`
	// Upload is set by the caller of a create/update hook when a new file was uploaded.
	Upload bool `json:"upload,omitempty"`
}

func (r *Resource) IsUpload() bool {
	return r.URLType == URLTypeUpload
}

func (r *Resource) LowerFormat() string {
	return strings.ToLower(strings.TrimSpace(r.Format))
}

// HasSchema reports whether a non empty schema is attached.
func (r *Resource) HasSchema() bool {
	v, err := utils.DecodeJSONValue(r.Schema)
	if err != nil {
		// undecodable strings are still a schema, the executor reports them
		return len(r.Schema) > 0
	}
	switch s := v.(type) {
	case nil:
		return false
	case map[string]interface{}:
		return len(s) > 0
	default:
		return true
	}
}

// Dataset is the subset of a catalog package this service needs.
type Dataset struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Private   bool       `json:"private"`
	Resources []Resource `json:"resources"`
}

type SearchResult struct {
	Count   int       `json:"count"`
	Results []Dataset `json:"results"`
}

// SearchParams are the package_search parameters the batch run supports.
type SearchParams struct {
	Q              string   `json:"q"`
	FQ             string   `json:"fq"`
	FQList         []string `json:"fq_list"`
	IncludePrivate bool     `json:"include_private"`
	Rows           int      `json:"rows"`
	Start          int      `json:"start"`
}

// ResourcePatch is the status written back to the catalog after a run.
type ResourcePatch struct {
	ID                  string `json:"id"`
	ValidationStatus    string `json:"validation_status"`
	ValidationTimestamp string `json:"validation_timestamp"`
}
