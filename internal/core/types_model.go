package core

// ModelInfo describes one entry of the advertised model catalog.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Provider    string `json:"provider"`
	Description string `json:"description,omitempty"`
	MaxTokens   int    `json:"maxTokens,omitempty"`
}

// ModelsData holds the model catalog.
type ModelsData struct {
	Data []ModelInfo `json:"data"`
}

// Find returns the catalog entry for id, or nil.
func (m ModelsData) Find(id string) *ModelInfo {
	for i := range m.Data {
		if m.Data[i].ID == id {
			return &m.Data[i]
		}
	}
	return nil
}
