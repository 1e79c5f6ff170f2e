package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/medinotes/internal/consultation"
	"github.com/jwalitptl/medinotes/internal/credential"
	"github.com/jwalitptl/medinotes/internal/model"
	"github.com/jwalitptl/medinotes/internal/render"
)

type fakeServer struct {
	*httptest.Server
	plan    atomic.Value
	issued  atomic.Int32
	logouts atomic.Int32
	streams atomic.Int32
}

func newFakeServer(t *testing.T, plan string) *fakeServer {
	t.Helper()
	f := &fakeServer{}
	f.plan.Store(plan)

	envelope := func(w http.ResponseWriter, status int, data interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		body := map[string]interface{}{"success": status < 300}
		if status < 300 {
			body["data"] = data
		} else {
			body["error"] = map[string]interface{}{"code": status, "message": data}
		}
		_ = json.NewEncoder(w).Encode(body)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/token", func(w http.ResponseWriter, r *http.Request) {
		var req model.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "correct-horse" {
			envelope(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		n := f.issued.Add(1)
		envelope(w, http.StatusOK, model.TokenResponse{
			AccessToken: "T" + strconv.Itoa(int(n)),
			TokenType:   "Bearer",
			ExpiresAt:   time.Now().Add(time.Hour),
		})
	})
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, http.StatusOK, model.Profile{
			ID: "1", Name: "Dr Demo", Email: "demo@example.com", Plan: f.plan.Load().(string),
		})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		f.logouts.Add(1)
		envelope(w, http.StatusOK, "signed out")
	})
	mux.HandleFunc("POST /api", func(w http.ResponseWriter, r *http.Request) {
		f.streams.Add(1)
		var req model.ConsultationRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: ## Summary\ndata: \n\n")
		fmt.Fprintf(w, "data: Patient %s seen\n\n", req.PatientName)
		fmt.Fprintf(w, "data:  on %s.\n\n", req.DateOfVisit)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func baseArgs(srv *fakeServer, storePath string) []string {
	return []string{
		"--server", srv.URL,
		"--email", "demo@example.com",
		"--password", "correct-horse",
		"--store", "file",
		"--store-path", storePath,
		"--log-level", "error",
	}
}

func submitArgs(srv *fakeServer, storePath string, extra ...string) []string {
	args := append([]string{"submit"}, baseArgs(srv, storePath)...)
	args = append(args, "--patient", "Jane Doe", "--date", "2026-10-18", "--notes", "Mild cough.", "--prompt=false")
	return append(args, extra...)
}

func TestSubmitPlainStreamsFragments(t *testing.T) {
	srv := newFakeServer(t, model.PlanPremium)
	store := filepath.Join(t.TempDir(), "credentials.json")

	out, err := run(t, submitArgs(srv, store, "--plain")...)
	require.NoError(t, err)
	assert.Equal(t, "## Summary\nPatient Jane Doe seen on 2026-10-18.\n", out)

	// The token cached by the first run is reused by the second.
	_, err = run(t, submitArgs(srv, store, "--plain")...)
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.issued.Load())
	assert.Equal(t, int32(2), srv.streams.Load())
}

func TestSubmitHTML(t *testing.T) {
	srv := newFakeServer(t, model.PlanPremium)

	out, err := run(t, submitArgs(srv, filepath.Join(t.TempDir(), "c.json"), "--html")...)
	require.NoError(t, err)
	assert.Contains(t, out, `<h2 id="summary">Summary</h2>`)
	assert.Contains(t, out, "Patient Jane Doe seen on 2026-10-18.")
}

func TestSubmitWithoutPlanShowsPricing(t *testing.T) {
	srv := newFakeServer(t, model.PlanFree)

	out, err := run(t, submitArgs(srv, filepath.Join(t.TempDir(), "c.json"), "--plain")...)
	require.ErrorIs(t, err, ErrPlanRequired)
	assert.Contains(t, out, "Healthcare Professional Plan")
	assert.Equal(t, int32(0), srv.streams.Load())
}

func TestSubmitWithBadPasswordNeedsAuthentication(t *testing.T) {
	srv := newFakeServer(t, model.PlanPremium)
	args := submitArgs(srv, filepath.Join(t.TempDir(), "c.json"), "--plain", "--password", "wrong-password")

	_, err := run(t, args...)
	require.Error(t, err)
	assert.Equal(t, credential.MsgAuthRequired, err.Error())
	assert.Equal(t, int32(0), srv.streams.Load())
}

func TestSubmitWithExpiredCredential(t *testing.T) {
	srv := newFakeServer(t, model.PlanPremium)
	path := filepath.Join(t.TempDir(), "c.json")
	store := credential.NewFileStore(path)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, credential.TokenKey, "OLD"))
	require.NoError(t, store.Set(ctx, credential.ExpiryKey,
		strconv.FormatInt(time.Now().Add(-time.Minute).UnixMilli(), 10)))

	_, err := run(t, submitArgs(srv, path, "--plain")...)
	require.Error(t, err)
	assert.Equal(t, credential.MsgSessionExpired, err.Error())
	assert.Equal(t, int32(0), srv.issued.Load())
	assert.Equal(t, int32(0), srv.streams.Load())

	_, ok, err := store.Get(ctx, credential.TokenKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignInStatusSignOut(t *testing.T) {
	srv := newFakeServer(t, model.PlanPremium)
	path := filepath.Join(t.TempDir(), "c.json")

	out, err := run(t, append([]string{"status"}, baseArgs(srv, path)...)...)
	require.NoError(t, err)
	assert.Equal(t, "Not signed in.\n", out)

	out, err = run(t, append([]string{"signin"}, baseArgs(srv, path)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as Dr Demo <demo@example.com> on the premium_subscription plan.")

	out, err = run(t, append([]string{"status"}, baseArgs(srv, path)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Plan: premium_subscription")

	out, err = run(t, append([]string{"signout"}, baseArgs(srv, path)...)...)
	require.NoError(t, err)
	assert.Equal(t, "Signed out.\n", out)
	assert.Equal(t, int32(1), srv.logouts.Load())

	out, err = run(t, append([]string{"status"}, baseArgs(srv, path)...)...)
	require.NoError(t, err)
	assert.Equal(t, "Not signed in.\n", out)
}

func TestUnknownStore(t *testing.T) {
	srv := newFakeServer(t, model.PlanPremium)
	args := append([]string{"status"}, baseArgs(srv, "")...)
	args = append(args, "--store", "etcd")

	_, err := run(t, args...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown credential store "etcd"`)
}

func TestStreamModel(t *testing.T) {
	aborted := false
	m := newStreamModel("Jane Doe", render.Plain{}, func() { aborted = true })

	next, _ := m.Update(stateMsg(consultation.State{Status: model.StatusStreaming, Output: "## Sum"}))
	m = next.(streamModel)
	view := m.View()
	assert.Contains(t, view, model.SubmittingLabel+" for Jane Doe")
	assert.Contains(t, view, outputTitle)
	assert.Contains(t, view, "## Sum")
	assert.Contains(t, view, "esc to stop")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(streamModel)
	assert.True(t, aborted)

	next, cmd := m.Update(doneMsg{err: errors.New("boom")})
	m = next.(streamModel)
	assert.True(t, m.done)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.NotContains(t, m.View(), "esc to stop")
}

func TestRequestValidationHelpers(t *testing.T) {
	assert.NoError(t, visitDate("2026-10-18"))
	assert.Error(t, visitDate("18/10/2026"))
	assert.Error(t, required("patient name")("  "))

	in := &submitInput{patient: " Jane ", notes: "n"}
	req, err := in.request(nil)
	require.NoError(t, err)
	assert.Equal(t, "Jane", req.PatientName)
	assert.Equal(t, time.Now().Format(model.DateLayout), req.DateOfVisit)
}
