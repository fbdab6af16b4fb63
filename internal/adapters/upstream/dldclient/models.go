package dldclient

// pageResponse is the envelope every listing endpoint returns
type pageResponse struct {
	Data  []map[string]any `json:"data"`
	Page  int              `json:"page"`
	Total int              `json:"total"`
}
