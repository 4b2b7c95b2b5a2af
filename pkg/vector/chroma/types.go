package chroma

type chromaCollection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type chromaAddRequest struct {
	IDs        []string            `json:"ids"`
	Embeddings [][]float32         `json:"embeddings"`
	Metadatas  []map[string]string `json:"metadatas,omitempty"`
	Documents  []string            `json:"documents,omitempty"`
}

type chromaQueryRequest struct {
	QueryEmbeddings [][]float32 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
	Include         []string    `json:"include"`
}

type chromaQueryResponse struct {
	IDs       [][]string            `json:"ids"`
	Documents [][]*string           `json:"documents"`
	Distances [][]float32           `json:"distances"`
	Metadatas [][]map[string]string `json:"metadatas"`
}

type chromaDeleteRequest struct {
	IDs []string `json:"ids"`
}
