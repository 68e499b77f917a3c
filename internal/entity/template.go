package entity

// TemplateRecord is the persisted form of one template.
type TemplateRecord struct {
	DisplayName  string            `json:"displayName"`
	Coords       []int             `json:"coords"`
	ChunksBase64 map[string]string `json:"chunksBase64"`
	PixelCount   int               `json:"pixelCount"`
}

type TemplateSummary struct {
	Index       int        `json:"index"`
	DisplayName string     `json:"displayName"`
	Coords      Coordinate `json:"coords"`
	PixelCount  int        `json:"pixelCount"`
	Tiles       []string   `json:"tiles"`
}

type CreateTemplateResponse struct {
	Template TemplateSummary `json:"template"`
	Status   string          `json:"status"`
}

type ToggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}
