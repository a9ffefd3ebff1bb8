package protocol

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func BenchmarkStatementDecode(b *testing.B) {
	body := []byte(`{"id":3,"code":"df.show()","state":"available","output":{"status":"ok",` +
		`"execution_count":3,"data":{"text/plain":"` + strings.Repeat("x", 4096) + `",` +
		`"application/json":{"schema":{"fields":[{"name":"id","type":"long"}]},"data":[[1],[2]]}}}}`)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		var st Statement
		if err := json.Unmarshal(body, &st); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkClientGetStatement(b *testing.B) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":0,"state":"available","output":{"status":"ok","data":{"text/plain":"2"}}}`)
	}))
	defer server.Close()

	c := NewClient(server.URL)
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := c.GetStatement(ctx, 1, 0); err != nil {
			b.Fatal(err)
		}
	}
}
