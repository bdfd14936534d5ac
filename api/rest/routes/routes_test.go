package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llm-finetune/api/rest/handlers"
	"llm-finetune/core/datasets"
	"llm-finetune/core/executor"
	"llm-finetune/core/models"
	"llm-finetune/core/monitoring"
	"llm-finetune/core/ops"
	"llm-finetune/core/recovery"
	"llm-finetune/core/registry"
	"llm-finetune/core/repository"
	"llm-finetune/core/status"
	"llm-finetune/providers/ollama"
	"llm-finetune/storage"
)

const trainerScript = `#!/bin/sh
cfg="$2"
out=$(sed -n 's/^output_dir: *//p' "$cfg")
mode=$(sed -n 's/^base_model: *//p' "$cfg")
echo "STEP 1/6: Loading tokenizer..."
case "$mode" in
  succeed)
    mkdir -p "$out/hf_out/checkpoint-4"
    printf 'FROM llama3:8b\n' > "$out/Modelfile"
    exit 0 ;;
  *)
    exec sleep 30 ;;
esac
`

const registerScript = `#!/bin/sh
if [ "$2" = "broken" ]; then
  echo "Error: bad adapter" >&2
  exit 1
fi
echo "created $2"
`

type testServer struct {
	*httptest.Server
	supervisor *executor.Supervisor
}

func newTestServer(t *testing.T, daemonURL string) *testServer {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake executables need /bin/sh")
	}
	root := t.TempDir()
	trainer := filepath.Join(root, "train.sh")
	cli := filepath.Join(root, "ollama")
	if err := os.WriteFile(trainer, []byte(trainerScript), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cli, []byte(registerScript), 0o755); err != nil {
		t.Fatal(err)
	}

	store, err := datasets.NewStore(filepath.Join(root, "datasets"))
	if err != nil {
		t.Fatal(err)
	}
	journal := repository.NoopRecorder{}
	sup := executor.NewSupervisor(executor.SupervisorConfig{
		ContentRoot:    root,
		TrainerCommand: "sh",
		TrainerArgs:    []string{trainer},
	}, store, registry.New(), journal)
	disk := recovery.NewReader(sup.RunsRoot(), 0)
	projector := status.NewProjector(sup, disk)
	daemon := ollama.NewClient(daemonURL)

	reg, err := monitoring.NewMetricsExporter(projector, store, sup).Registry()
	if err != nil {
		t.Fatal(err)
	}

	r := mux.NewRouter()
	SetupRoutes(r, Handlers{
		Datasets:  handlers.NewDatasetHandler(store),
		Jobs:      handlers.NewJobHandler(sup, projector, disk, journal, storage.NewArtifactManager(sup.RunsRoot())),
		Models:    handlers.NewModelHandler(executor.NewModelRegistrar(sup.RunsRoot(), cli), daemon),
		Tools:     handlers.NewToolHandler(ops.NewDispatcher(sup, projector, daemon, store)),
		Dashboard: handlers.NewDashboardHandler(projector, store, sup),
	}, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		sup.Close()
	})
	return &testServer{Server: srv, supervisor: sup}
}

func fakeDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	m := http.NewServeMux()
	m.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"models":[{"name":"refunds-bot:latest"}]}`)
	})
	m.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":"Hel","done":false}`+"\n"+`{"response":"lo","done":true}`+"\n")
	})
	m.HandleFunc("/api/pull", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"pulling manifest"}`+"\n"+`{"status":"success"}`+"\n")
	})
	srv := httptest.NewServer(m)
	t.Cleanup(srv.Close)
	return srv
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := s.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func (s *testServer) upload(t *testing.T, name, content string) models.Dataset {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(fw, content)
	mw.Close()

	resp, err := s.Client().Post(s.URL+"/v1/datasets", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("upload status = %d: %s", resp.StatusCode, b)
	}
	var ds models.Dataset
	if err := json.NewDecoder(resp.Body).Decode(&ds); err != nil {
		t.Fatal(err)
	}
	return ds
}

func (s *testServer) launch(t *testing.T, datasetID, baseModel string) string {
	t.Helper()
	resp, body := s.do(t, "POST", "/v1/jobs", executor.LaunchRequest{
		DatasetID: datasetID, BaseModel: baseModel, Epochs: 1, LearningRate: 0.0002,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("launch status = %d: %s", resp.StatusCode, body)
	}
	var launch models.JobLaunch
	if err := json.Unmarshal(body, &launch); err != nil {
		t.Fatal(err)
	}
	return launch.JobID
}

func (s *testServer) waitState(t *testing.T, jobID string) models.JobStatus {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		_, body := s.do(t, "GET", "/v1/jobs/"+jobID, nil)
		var st models.JobStatus
		if err := json.Unmarshal(body, &st); err != nil {
			t.Fatal(err)
		}
		if st.State.Terminal() {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s never finished: %+v", jobID, st)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestAPI_JobLifecycle(t *testing.T) {
	s := newTestServer(t, fakeDaemon(t).URL)

	ds := s.upload(t, "data.jsonl", "{\"a\":1}\n{\"a\":2}\n{\"a\":3}\n")
	if ds.Count != 3 {
		t.Fatalf("count = %d", ds.Count)
	}
	_, body := s.do(t, "GET", "/v1/datasets", nil)
	if !strings.Contains(string(body), ds.ID) {
		t.Fatalf("dataset list = %s", body)
	}

	jobID := s.launch(t, ds.ID, "succeed")
	st := s.waitState(t, jobID)
	if st.State != models.JobStateSucceeded || st.ArtifactPath == nil {
		t.Fatalf("status = %+v", st)
	}

	resp, body := s.do(t, "GET", "/v1/jobs/"+jobID+"/artifacts", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"Modelfile"`) || !strings.Contains(string(body), "checkpoint-4") {
		t.Fatalf("artifacts = %d %s", resp.StatusCode, body)
	}

	resp, body = s.do(t, "GET", "/v1/jobs/"+jobID+"/config", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"base_model":"succeed"`) {
		t.Fatalf("config = %d %s", resp.StatusCode, body)
	}

	resp, body = s.do(t, "GET", "/v1/jobs/"+jobID+"/events", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"items":[]`) {
		t.Fatalf("events = %d %s", resp.StatusCode, body)
	}

	resp, body = s.do(t, "POST", "/v1/models/register", handlers.RegisterModelRequest{JobID: jobID, ModelName: "refunds-bot"})
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "created refunds-bot") {
		t.Fatalf("register = %d %s", resp.StatusCode, body)
	}

	resp, body = s.do(t, "POST", "/v1/models/register", handlers.RegisterModelRequest{JobID: jobID, ModelName: "broken"})
	if resp.StatusCode != http.StatusUnprocessableEntity || !strings.Contains(string(body), `"exitCode":1`) {
		t.Fatalf("failed register = %d %s", resp.StatusCode, body)
	}

	resp, body = s.do(t, "GET", "/v1/jobs?state=succeeded", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), jobID) {
		t.Fatalf("list = %d %s", resp.StatusCode, body)
	}

	resp, body = s.do(t, "GET", "/v1/dashboard", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"launches":1`) {
		t.Fatalf("dashboard = %d %s", resp.StatusCode, body)
	}

	resp, body = s.do(t, "GET", "/metrics", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `finetune_jobs{state="succeeded"} 1`) {
		t.Fatalf("metrics = %d %s", resp.StatusCode, body)
	}
}

func TestAPI_Cancel(t *testing.T) {
	s := newTestServer(t, fakeDaemon(t).URL)
	ds := s.upload(t, "data.txt", "hello")
	jobID := s.launch(t, ds.ID, "sleepy")

	resp, body := s.do(t, "POST", "/v1/jobs/"+jobID+"/cancel", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel = %d %s", resp.StatusCode, body)
	}
	var st models.JobStatus
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatal(err)
	}
	if st.State != models.JobStateCancelled {
		t.Fatalf("state = %s", st.State)
	}

	resp, _ = s.do(t, "POST", "/v1/jobs/not-a-job/cancel", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cancel unknown = %d", resp.StatusCode)
	}
}

func TestAPI_Errors(t *testing.T) {
	s := newTestServer(t, fakeDaemon(t).URL)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"unknown dataset", "POST", "/v1/jobs", executor.LaunchRequest{DatasetID: "nope", BaseModel: "m", Epochs: 1, LearningRate: 1}, http.StatusNotFound},
		{"events of unknown job", "GET", "/v1/jobs/nope/events", nil, http.StatusNotFound},
		{"artifacts of unknown job", "GET", "/v1/jobs/nope/artifacts", nil, http.StatusNotFound},
		{"config of unknown job", "GET", "/v1/jobs/nope/config", nil, http.StatusNotFound},
		{"register without artifact", "POST", "/v1/models/register", handlers.RegisterModelRequest{JobID: "nope", ModelName: "m"}, http.StatusNotFound},
		{"unknown op", "POST", "/v1/ops/format_disk", nil, http.StatusBadRequest},
		{"empty chat prompt", "POST", "/v1/chat", handlers.ChatRequest{Model: "m"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.do(t, tt.method, tt.path, tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tt.want, body)
			}
		})
	}

	resp, err := s.Client().Post(s.URL+"/v1/jobs", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body = %d", resp.StatusCode)
	}

	// an unknown job is a failed status, not an HTTP error
	resp, body := s.do(t, "GET", "/v1/jobs/nope", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), models.UnknownJobMessage) {
		t.Fatalf("unknown job = %d %s", resp.StatusCode, body)
	}
}

func TestAPI_ModelDaemon(t *testing.T) {
	s := newTestServer(t, fakeDaemon(t).URL)

	resp, body := s.do(t, "GET", "/v1/models", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "refunds-bot:latest") {
		t.Fatalf("models = %d %s", resp.StatusCode, body)
	}

	resp, body = s.do(t, "POST", "/v1/chat", handlers.ChatRequest{Model: "refunds-bot", Prompt: "hi"})
	if resp.StatusCode != http.StatusOK || string(body) != "Hello" {
		t.Fatalf("chat = %d %q", resp.StatusCode, body)
	}

	resp, body = s.do(t, "POST", "/v1/models/pull", handlers.PullModelRequest{Model: "llama3:8b"})
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"status":"success"`) {
		t.Fatalf("pull = %d %s", resp.StatusCode, body)
	}

	resp, body = s.do(t, "POST", "/v1/ops/load_model", map[string]string{"model": "llama3:8b"})
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"op":"load_model"`) {
		t.Fatalf("load_model = %d %s", resp.StatusCode, body)
	}

	resp, body = s.do(t, "POST", "/v1/ops/list_datasets", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"result":[]`) {
		t.Fatalf("list_datasets = %d %s", resp.StatusCode, body)
	}
}

func TestAPI_ModelDaemonDown(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	s := newTestServer(t, down.URL)

	for _, tt := range []struct {
		method, path string
		body         interface{}
	}{
		{"GET", "/v1/models", nil},
		{"POST", "/v1/chat", handlers.ChatRequest{Model: "m", Prompt: "hi"}},
		{"POST", "/v1/models/pull", handlers.PullModelRequest{Model: "m"}},
	} {
		resp, body := s.do(t, tt.method, tt.path, tt.body)
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("%s %s = %d %s", tt.method, tt.path, resp.StatusCode, body)
		}
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, fakeDaemon(t).URL)
	resp, body := s.do(t, "GET", "/health", nil)
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Fatalf("health = %d %s", resp.StatusCode, body)
	}
}
