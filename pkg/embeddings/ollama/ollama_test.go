package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nontawat9304/mali-chat/pkg/embeddings/ollama"
	"github.com/nontawat9304/mali-chat/pkg/logger"
	"github.com/nontawat9304/mali-chat/pkg/vector"
)

var _ = Describe("Embedder", func() {
	var (
		server  *httptest.Server
		status  int
		lastReq map[string]any
	)

	BeforeEach(func() {
		status = http.StatusOK
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/api/embed"))
			lastReq = map[string]any{}
			_ = json.NewDecoder(r.Body).Decode(&lastReq)
			if status != http.StatusOK {
				http.Error(w, "model not found", status)
				return
			}

			n := 1
			if inputs, ok := lastReq["input"].([]any); ok {
				n = len(inputs)
			}
			out := make([][]float32, n)
			for i := range out {
				out[i] = []float32{float32(i), 0.5}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	newEmbedder := func() *ollama.Embedder {
		e, err := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: server.URL, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
		return e
	}

	It("embeds a single text with the default model", func() {
		v, err := newEmbedder().Embed(context.Background(), "ชื่อพี่นนท์")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal([]float32{0, 0.5}))
		Expect(lastReq).To(HaveKeyWithValue("model", ollama.DefaultEmbeddingModel))
	})

	It("embeds a batch in one request", func() {
		vs, err := newEmbedder().EmbedBatch(context.Background(), []string{"a", "b", "c"})
		Expect(err).NotTo(HaveOccurred())
		Expect(vs).To(HaveLen(3))
	})

	It("wraps non-200 responses as embedding errors", func() {
		status = http.StatusNotFound
		_, err := newEmbedder().Embed(context.Background(), "x")
		Expect(err).To(MatchError(vector.ErrEmbedding))
		Expect(err.Error()).To(ContainSubstring("404"))
	})
})
