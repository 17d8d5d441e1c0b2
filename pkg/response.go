package pkg

type Response struct {
	Sizes FileSizes `json:"sizes"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
