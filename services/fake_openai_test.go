package services

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/collabhub/api/services/openai"
)

// fakeRun is the provider-side state of one assistant run
type fakeRun struct {
	ID          string
	ThreadID    string
	AssistantID string
	Status      string
	Usage       openai.RunUsage
}

// fakeMessage is the provider-side state of one thread message
type fakeMessage struct {
	ID      string
	Role    string
	Content string
	RunID   string
}

// fakeOpenAI is an in-process stand-in for the provider API. It covers the
// endpoints the services touch and allows per-endpoint failure injection via
// failWith.
type fakeOpenAI struct {
	t   *testing.T
	srv *httptest.Server

	mu           sync.Mutex
	seq          int
	vectorStores map[string]bool
	assistants   map[string][]string          // assistant ID -> bound store IDs
	threads      map[string]bool
	files        map[string]string            // file ID -> filename
	storeFiles   map[string]map[string]string // store ID -> file ID -> status
	runs         map[string]*fakeRun
	messages     map[string][]fakeMessage // thread ID -> messages
	requests     map[string]int           // "METHOD path-prefix" -> count
	failWith     map[string]int           // "METHOD path-prefix" -> status code
	batchCalls   int
}

func newFakeOpenAI(t *testing.T) *fakeOpenAI {
	f := &fakeOpenAI{
		t:            t,
		vectorStores: make(map[string]bool),
		assistants:   make(map[string][]string),
		threads:      make(map[string]bool),
		files:        make(map[string]string),
		storeFiles:   make(map[string]map[string]string),
		runs:         make(map[string]*fakeRun),
		messages:     make(map[string][]fakeMessage),
		requests:     make(map[string]int),
		failWith:     make(map[string]int),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

// clientFactory returns a factory suitable for the services' ClientFactory
// field: no retries, no pacing, pointed at the fake server
func (f *fakeOpenAI) clientFactory() func(apiKey string) *openai.Client {
	return func(apiKey string) *openai.Client {
		return openai.NewClient(openai.Config{
			APIKey:  apiKey,
			BaseURL: f.srv.URL,
			RetryConfig: &openai.RetryConfig{
				MaxRetries:     0,
				InitialBackoff: time.Millisecond,
				MaxBackoff:     time.Millisecond,
			},
			RateLimiterConfig: &openai.RateLimiterConfig{
				MaxTokens:  1000,
				RefillRate: 1000,
			},
		})
	}
}

func (f *fakeOpenAI) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%04d", prefix, f.seq)
}

// fail makes every request matching "METHOD /v1/path-prefix" return the given
// status until cleared with a zero code
func (f *fakeOpenAI) fail(key string, statusCode int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if statusCode == 0 {
		delete(f.failWith, key)
		return
	}
	f.failWith[key] = statusCode
}

func (f *fakeOpenAI) requestCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[key]
}

func (f *fakeOpenAI) batchCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batchCalls
}

func (f *fakeOpenAI) attachedFiles(storeID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.storeFiles[storeID])
}

// seedRemote registers remote objects directly, for tests that bypass the
// provisioning flow
func (f *fakeOpenAI) seedRemote(storeID, assistantID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if storeID != "" {
		f.vectorStores[storeID] = true
		if f.storeFiles[storeID] == nil {
			f.storeFiles[storeID] = make(map[string]string)
		}
	}
	if assistantID != "" {
		f.assistants[assistantID] = []string{storeID}
	}
}

// completeRun marks a run finished with the given usage and appends an
// assistant reply to its thread
func (f *fakeOpenAI) completeRun(runID, reply string, usage openai.RunUsage) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	run, ok := f.runs[runID]
	if !ok {
		f.t.Fatalf("completeRun: unknown run %s", runID)
	}
	run.Status = "completed"
	run.Usage = usage

	msgID := f.nextID("msg")
	f.messages[run.ThreadID] = append(f.messages[run.ThreadID], fakeMessage{
		ID:      msgID,
		Role:    "assistant",
		Content: reply,
		RunID:   runID,
	})
	return msgID
}

func (f *fakeOpenAI) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()

	path := strings.TrimPrefix(r.URL.Path, "/v1")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	key := r.Method + " /" + parts[0]
	f.requests[key]++
	if code, ok := f.failWith[key]; ok {
		f.mu.Unlock()
		f.writeError(w, code, "injected failure")
		return
	}

	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && path == "/vector_stores":
		var req struct {
			Name string `json:"name"`
		}
		f.decode(r, &req)
		id := f.nextID("vs")
		f.vectorStores[id] = true
		f.storeFiles[id] = make(map[string]string)
		f.writeJSON(w, map[string]interface{}{
			"id": id, "object": "vector_store", "name": req.Name,
			"status": "completed", "created_at": time.Now().Unix(),
			"file_counts": map[string]int{},
		})

	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "vector_stores":
		id := parts[1]
		if !f.vectorStores[id] {
			f.writeError(w, http.StatusNotFound, "vector store not found")
			return
		}
		f.writeJSON(w, map[string]interface{}{
			"id": id, "object": "vector_store", "name": "store",
			"status": "completed", "file_counts": map[string]int{},
		})

	case r.Method == http.MethodDelete && len(parts) == 2 && parts[0] == "vector_stores":
		id := parts[1]
		if !f.vectorStores[id] {
			f.writeError(w, http.StatusNotFound, "vector store not found")
			return
		}
		delete(f.vectorStores, id)
		f.writeJSON(w, map[string]interface{}{"id": id, "object": "vector_store.deleted", "deleted": true})

	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "vector_stores" && parts[2] == "files":
		var req struct {
			FileID string `json:"file_id"`
		}
		f.decode(r, &req)
		f.storeFiles[parts[1]][req.FileID] = "completed"
		f.writeJSON(w, map[string]interface{}{
			"id": req.FileID, "object": "vector_store.file",
			"vector_store_id": parts[1], "status": "completed",
		})

	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "vector_stores" && parts[2] == "file_batches":
		var req struct {
			FileIDs []string `json:"file_ids"`
		}
		f.decode(r, &req)
		f.batchCalls++
		for _, id := range req.FileIDs {
			f.storeFiles[parts[1]][id] = "completed"
		}
		f.writeJSON(w, map[string]interface{}{
			"id": f.nextID("vsfb"), "object": "vector_store.file_batch",
			"vector_store_id": parts[1], "status": "completed",
			"file_counts": map[string]int{"completed": len(req.FileIDs), "total": len(req.FileIDs)},
		})

	case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "vector_stores" && parts[2] == "files":
		var data []map[string]interface{}
		for id, status := range f.storeFiles[parts[1]] {
			data = append(data, map[string]interface{}{
				"id": id, "object": "vector_store.file",
				"vector_store_id": parts[1], "status": status,
			})
		}
		f.writeJSON(w, map[string]interface{}{"object": "list", "data": data, "has_more": false})

	case r.Method == http.MethodDelete && len(parts) == 4 && parts[0] == "vector_stores" && parts[2] == "files":
		delete(f.storeFiles[parts[1]], parts[3])
		f.writeJSON(w, map[string]interface{}{"id": parts[3], "object": "vector_store.file.deleted", "deleted": true})

	case r.Method == http.MethodPost && path == "/assistants":
		var req struct {
			Name          *string `json:"name"`
			Model         string  `json:"model"`
			Instructions  *string `json:"instructions"`
			ToolResources *struct {
				FileSearch *struct {
					VectorStoreIDs []string `json:"vector_store_ids"`
				} `json:"file_search"`
			} `json:"tool_resources"`
		}
		f.decode(r, &req)
		id := f.nextID("asst")
		var storeIDs []string
		if req.ToolResources != nil && req.ToolResources.FileSearch != nil {
			storeIDs = req.ToolResources.FileSearch.VectorStoreIDs
		}
		f.assistants[id] = storeIDs
		f.writeJSON(w, f.assistantJSON(id, req.Name, req.Model, req.Instructions, storeIDs))

	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "assistants":
		id := parts[1]
		storeIDs, ok := f.assistants[id]
		if !ok {
			f.writeError(w, http.StatusNotFound, "assistant not found")
			return
		}
		name := "assistant"
		f.writeJSON(w, f.assistantJSON(id, &name, "gpt-4o-mini", nil, storeIDs))

	case r.Method == http.MethodDelete && len(parts) == 2 && parts[0] == "assistants":
		id := parts[1]
		if _, ok := f.assistants[id]; !ok {
			f.writeError(w, http.StatusNotFound, "assistant not found")
			return
		}
		delete(f.assistants, id)
		f.writeJSON(w, map[string]interface{}{"id": id, "object": "assistant.deleted", "deleted": true})

	case r.Method == http.MethodPost && path == "/threads":
		id := f.nextID("thread")
		f.threads[id] = true
		f.writeJSON(w, map[string]interface{}{"id": id, "object": "thread", "created_at": time.Now().Unix()})

	case r.Method == http.MethodDelete && len(parts) == 2 && parts[0] == "threads":
		id := parts[1]
		if !f.threads[id] {
			f.writeError(w, http.StatusNotFound, "thread not found")
			return
		}
		delete(f.threads, id)
		f.writeJSON(w, map[string]interface{}{"id": id, "object": "thread.deleted", "deleted": true})

	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "threads" && parts[2] == "messages":
		var req struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}
		f.decode(r, &req)
		id := f.nextID("msg")
		f.messages[parts[1]] = append(f.messages[parts[1]], fakeMessage{ID: id, Role: req.Role, Content: req.Content})
		f.writeJSON(w, f.messageJSON(parts[1], fakeMessage{ID: id, Role: req.Role, Content: req.Content}))

	case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "threads" && parts[2] == "messages":
		runFilter := r.URL.Query().Get("run_id")
		var data []map[string]interface{}
		for _, msg := range f.messages[parts[1]] {
			if runFilter != "" && msg.RunID != runFilter {
				continue
			}
			data = append(data, f.messageJSON(parts[1], msg))
		}
		f.writeJSON(w, map[string]interface{}{"object": "list", "data": data, "has_more": false})

	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "threads" && parts[2] == "runs":
		var req struct {
			AssistantID string `json:"assistant_id"`
		}
		f.decode(r, &req)
		run := &fakeRun{
			ID:          f.nextID("run"),
			ThreadID:    parts[1],
			AssistantID: req.AssistantID,
			Status:      "queued",
		}
		f.runs[run.ID] = run
		f.writeJSON(w, f.runJSON(run))

	case r.Method == http.MethodGet && len(parts) == 4 && parts[0] == "threads" && parts[2] == "runs":
		run, ok := f.runs[parts[3]]
		if !ok {
			f.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		f.writeJSON(w, f.runJSON(run))

	case r.Method == http.MethodPost && path == "/files":
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			f.writeError(w, http.StatusBadRequest, "bad multipart body")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			f.writeError(w, http.StatusBadRequest, "missing file part")
			return
		}
		content, _ := io.ReadAll(file)
		file.Close()
		id := f.nextID("file")
		f.files[id] = header.Filename
		f.writeJSON(w, map[string]interface{}{
			"id": id, "object": "file", "bytes": len(content),
			"filename": header.Filename, "purpose": "assistants",
			"created_at": time.Now().Unix(),
		})

	case r.Method == http.MethodDelete && len(parts) == 2 && parts[0] == "files":
		id := parts[1]
		if _, ok := f.files[id]; !ok {
			f.writeError(w, http.StatusNotFound, "file not found")
			return
		}
		delete(f.files, id)
		f.writeJSON(w, map[string]interface{}{"id": id, "object": "file", "deleted": true})

	default:
		f.writeError(w, http.StatusNotFound, "unhandled route "+r.Method+" "+r.URL.Path)
	}
}

func (f *fakeOpenAI) assistantJSON(id string, name *string, model string, instructions *string, storeIDs []string) map[string]interface{} {
	result := map[string]interface{}{
		"id": id, "object": "assistant", "model": model,
		"created_at": time.Now().Unix(),
		"tools":      []map[string]string{{"type": "file_search"}},
	}
	if name != nil {
		result["name"] = *name
	}
	if instructions != nil {
		result["instructions"] = *instructions
	}
	if len(storeIDs) > 0 {
		result["tool_resources"] = map[string]interface{}{
			"file_search": map[string]interface{}{"vector_store_ids": storeIDs},
		}
	}
	return result
}

func (f *fakeOpenAI) messageJSON(threadID string, msg fakeMessage) map[string]interface{} {
	result := map[string]interface{}{
		"id": msg.ID, "object": "thread.message", "thread_id": threadID,
		"role": msg.Role, "created_at": time.Now().Unix(),
		"content": []map[string]interface{}{
			{"type": "text", "text": map[string]interface{}{"value": msg.Content, "annotations": []string{}}},
		},
	}
	if msg.RunID != "" {
		result["run_id"] = msg.RunID
	}
	return result
}

func (f *fakeOpenAI) runJSON(run *fakeRun) map[string]interface{} {
	return map[string]interface{}{
		"id": run.ID, "object": "thread.run", "thread_id": run.ThreadID,
		"assistant_id": run.AssistantID, "status": run.Status,
		"created_at": time.Now().Unix(),
		"usage": map[string]int{
			"prompt_tokens":     run.Usage.PromptTokens,
			"completion_tokens": run.Usage.CompletionTokens,
			"total_tokens":      run.Usage.TotalTokens,
		},
	}
}

func (f *fakeOpenAI) decode(r *http.Request, dst interface{}) {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		f.t.Fatalf("fakeOpenAI: failed to decode request body: %v", err)
	}
}

func (f *fakeOpenAI) writeJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		f.t.Errorf("fakeOpenAI: failed to encode response: %v", err)
	}
}

func (f *fakeOpenAI) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"invalid_request_error"}}`, message)
}
