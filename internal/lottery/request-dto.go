package lottery

// DrawRequest asks for up to Count winners
type DrawRequest struct {
	Count int `json:"count" validate:"required,gt=0"`
}
