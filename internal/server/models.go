package server

type dataResponse struct {
	Data interface{} `json:"data"`
}

type createdWorkspace struct {
	ID string `json:"id"`
}
