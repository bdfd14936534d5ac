package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"llm-finetune/core/errs"
)

func newDaemon(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/")
}

func TestListModels(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		fmt.Fprint(w, `{"models":[{"name":"refunds-bot:latest","model":"refunds-bot:latest","size":42,"digest":"abc"}]}`)
	})
	c := newDaemon(t, mux)

	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 1 || models[0].Name != "refunds-bot:latest" || models[0].Size != 42 {
		t.Fatalf("models = %+v", models)
	}
}

func TestListModels_DaemonError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"boom"}`)
	})
	c := newDaemon(t, mux)

	_, err := c.ListModels(context.Background())
	if !errors.Is(err, errs.ErrUpstream) || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v", err)
	}
}

func TestListModels_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewClient(srv.URL).ListModels(context.Background())
	if !errors.Is(err, errs.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}

func TestPull(t *testing.T) {
	tests := []struct {
		name    string
		stream  string
		wantErr bool
		wantN   int
	}{
		{
			name:   "success",
			stream: `{"status":"pulling manifest"}` + "\n" + `{"status":"downloading","digest":"d","total":10,"completed":5}` + "\n" + `{"status":"success"}` + "\n",
			wantN:  3,
		},
		{
			name:    "error frame",
			stream:  `{"status":"pulling manifest"}` + "\n" + `{"error":"model not found"}` + "\n",
			wantErr: true,
			wantN:   1,
		},
		{
			name:    "truncated",
			stream:  `{"status":"pulling manifest"}` + "\n",
			wantErr: true,
			wantN:   1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/api/pull", func(w http.ResponseWriter, r *http.Request) {
				var req PullRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Model != "llama3:8b" || !req.Stream {
					t.Errorf("request = %+v, %v", req, err)
				}
				fmt.Fprint(w, tt.stream)
			})
			c := newDaemon(t, mux)

			var seen []PullProgress
			err := c.Pull(context.Background(), "llama3:8b", func(p PullProgress) { seen = append(seen, p) })
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errs.ErrUpstream) {
				t.Fatalf("err = %v, want ErrUpstream", err)
			}
			if len(seen) != tt.wantN {
				t.Fatalf("progress lines = %d, want %d", len(seen), tt.wantN)
			}
		})
	}
}

func TestPull_EmptyName(t *testing.T) {
	if err := NewClient("").Pull(context.Background(), " ", nil); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("err = %v", err)
	}
}

func generateDaemon(t *testing.T, stream string) *Client {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Model != "refunds-bot" || req.Prompt != "hi" {
			t.Errorf("request = %+v, %v", req, err)
		}
		fmt.Fprint(w, stream)
	})
	return newDaemon(t, mux)
}

func TestGenerate(t *testing.T) {
	c := generateDaemon(t, `{"response":"Hel","done":false}`+"\n"+`{"response":"lo","done":false}`+"\n"+`{"response":"","done":true}`+"\n")

	var sb strings.Builder
	if err := c.Generate(context.Background(), GenerateRequest{Model: "refunds-bot", Prompt: "hi"}, func(s string) { sb.WriteString(s) }); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sb.String() != "Hello" {
		t.Fatalf("output = %q", sb.String())
	}
}

func TestStreamChat_MidStreamFailureAppendsMarker(t *testing.T) {
	c := generateDaemon(t, `{"response":"Partial","done":false}`+"\n"+`{"error":"out of memory"}`+"\n")

	var sb strings.Builder
	err := c.StreamChat(context.Background(), "refunds-bot", "hi", &sb)
	if !errors.Is(err, errs.ErrUpstream) {
		t.Fatalf("err = %v", err)
	}
	out := sb.String()
	if !strings.HasPrefix(out, "Partial") || !strings.Contains(out, ErrorMarker) || !strings.Contains(out, "out of memory") {
		t.Fatalf("output = %q", out)
	}
}

func TestStreamChat_FailureBeforeOutputWritesNothing(t *testing.T) {
	c := generateDaemon(t, `{"error":"model not found"}`+"\n")

	var sb strings.Builder
	if err := c.StreamChat(context.Background(), "refunds-bot", "hi", &sb); err == nil {
		t.Fatal("expected error")
	}
	if sb.Len() != 0 {
		t.Fatalf("output = %q", sb.String())
	}
}
