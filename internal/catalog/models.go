package catalog

// Content types.
const (
	ContentVideo    = "video"
	ContentDocument = "document"
	ContentText     = "text"
	ContentLink     = "link"
)

type ContentItem struct {
	ID          string `json:"id"`
	CourseID    string `json:"course_id"`
	ModuleID    string `json:"module_id"`
	Title       string `json:"title"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	DurationSec int    `json:"duration_sec,omitempty"` // video only
	SortOrder   int    `json:"sort_order"`
}

type Module struct {
	ID        string        `json:"id"`
	CourseID  string        `json:"course_id"`
	Title     string        `json:"title"`
	SortOrder int           `json:"sort_order"`
	Contents  []ContentItem `json:"contents,omitempty"`
}

type Course struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Modules     []Module `json:"modules,omitempty"`
	CreatedAt   int64    `json:"created_at,omitempty"`
}
