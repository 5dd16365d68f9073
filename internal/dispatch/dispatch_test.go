package dispatch

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fileferry/fileferry/internal/catalog"
	"github.com/fileferry/fileferry/internal/hub"
	"github.com/fileferry/fileferry/internal/logging"
	"github.com/fileferry/fileferry/internal/registry"
	"github.com/fileferry/fileferry/pkg/protocol"
)

func newTestDispatcher(t *testing.T, files ...string) (*Dispatcher, *hub.Hub, *registry.Registry) {
	t.Helper()
	cat, err := catalog.Open(t.TempDir())
	if err != nil {
		t.Fatalf("catalog.Open() error = %v", err)
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(cat.Dir(), f), []byte("content"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	h := hub.New()
	reg := registry.New(h)
	return New(cat, h, reg, logging.New("test", "error")), h, reg
}

// agentSink registers a fake agent session on the hub and records what it
// receives.
func agentSink(h *hub.Hub) func() []protocol.Envelope {
	var mu sync.Mutex
	var got []protocol.Envelope
	h.SetAgent("agent-test", func(env protocol.Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, env)
		return nil
	})
	return func() []protocol.Envelope {
		mu.Lock()
		defer mu.Unlock()
		out := make([]protocol.Envelope, len(got))
		copy(out, got)
		return out
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSubmitDownload_NotFound(t *testing.T) {
	d, h, reg := newTestDispatcher(t)
	agentSink(h)

	err := d.SubmitDownload("missing.txt")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("SubmitDownload() error = %v, want ErrNotFound", err)
	}
	if len(reg.All()) != 0 {
		t.Error("registry mutated by rejected command")
	}
}

func TestSubmitDownload_AgentUnavailable(t *testing.T) {
	d, _, reg := newTestDispatcher(t, "a.txt")

	reg.Set("a.txt", protocol.StatusComplete)

	err := d.SubmitDownload("a.txt")
	if !errors.Is(err, ErrAgentUnavailable) {
		t.Fatalf("SubmitDownload() error = %v, want ErrAgentUnavailable", err)
	}
	if got := reg.Get("a.txt"); got != protocol.StatusComplete {
		t.Errorf("prior status = %s after rejection, want complete", got)
	}
}

func TestSubmitDownload_Accepted(t *testing.T) {
	d, h, reg := newTestDispatcher(t, "a.txt")
	received := agentSink(h)

	if err := d.SubmitDownload("a.txt"); err != nil {
		t.Fatalf("SubmitDownload() error = %v", err)
	}

	// Optimistic update is visible before the command round-trips.
	if got := reg.Get("a.txt"); got != protocol.StatusDownloading {
		t.Errorf("Get() = %s immediately after accept, want downloading", got)
	}

	waitFor(t, func() bool { return len(received()) == 1 })
	env := received()[0]
	if env.Type != protocol.TypeDownload {
		t.Fatalf("agent received type %s, want %s", env.Type, protocol.TypeDownload)
	}
	var cmd protocol.Download
	if err := env.DecodePayload(&cmd); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if cmd.File != "a.txt" {
		t.Errorf("command file = %s, want a.txt", cmd.File)
	}
}

func TestSubmitDownload_Restart(t *testing.T) {
	d, h, reg := newTestDispatcher(t, "a.txt")
	received := agentSink(h)

	reg.Set("a.txt", protocol.StatusError)

	if err := d.SubmitDownload("a.txt"); err != nil {
		t.Fatalf("SubmitDownload() after terminal status error = %v", err)
	}
	if got := reg.Get("a.txt"); got != protocol.StatusDownloading {
		t.Errorf("Get() = %s, want downloading (restart)", got)
	}
	waitFor(t, func() bool { return len(received()) == 1 })
}

func TestSubmitDownload_IdempotentResubmit(t *testing.T) {
	d, h, _ := newTestDispatcher(t, "a.txt")
	received := agentSink(h)

	if err := d.SubmitDownload("a.txt"); err != nil {
		t.Fatalf("first SubmitDownload() error = %v", err)
	}
	if err := d.SubmitDownload("a.txt"); err != nil {
		t.Fatalf("resubmit while in flight error = %v", err)
	}
	waitFor(t, func() bool { return len(received()) == 2 })
}

func TestSubmitDownload_DistinctFilesIndependent(t *testing.T) {
	d, h, reg := newTestDispatcher(t, "a.txt", "b.txt")
	agentSink(h)

	var wg sync.WaitGroup
	for _, f := range []string{"a.txt", "b.txt"} {
		wg.Add(1)
		go func(f string) {
			defer wg.Done()
			if err := d.SubmitDownload(f); err != nil {
				t.Errorf("SubmitDownload(%s) error = %v", f, err)
			}
		}(f)
	}
	wg.Wait()

	all := reg.All()
	if all["a.txt"] != protocol.StatusDownloading || all["b.txt"] != protocol.StatusDownloading {
		t.Errorf("All() = %v, want both downloading", all)
	}
}
