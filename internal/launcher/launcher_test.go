package launcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gascity-labs/authbroker/internal/brokererr"
	"github.com/gascity-labs/authbroker/internal/credential"
)

type fakeRequester struct {
	sessionID    int32
	cookieCalls  []string
	env          []string
	displayName  string
	cookieErr    error
	requestEnvErr error
}

func (f *fakeRequester) RequestSessionID(ctx context.Context) (int32, error) {
	return f.sessionID, nil
}

func (f *fakeRequester) RequestCookieLink(ctx context.Context, path, user string) error {
	if f.cookieErr != nil {
		return f.cookieErr
	}
	f.cookieCalls = append(f.cookieCalls, path+":"+user)
	return nil
}

func (f *fakeRequester) RequestEnv(ctx context.Context, user string) ([]string, error) {
	if f.requestEnvErr != nil {
		return nil, f.requestEnvErr
	}
	return f.env, nil
}

func (f *fakeRequester) RequestDisplay(ctx context.Context) (string, error) {
	return f.displayName, nil
}

type fakeProvider struct {
	putEnvCalls        []string
	establishErr       error
	reinitializeErr    error
	mappedUser         string
	mappedUserErr      error
	reinitializeCalled bool
}

func (f *fakeProvider) State() credential.State { return credential.SessionOpened }
func (f *fakeProvider) Authenticate(ctx context.Context, req credential.Request, conv credential.Conversation) error {
	return nil
}
func (f *fakeProvider) AccountValid(ctx context.Context, conv credential.Conversation) error {
	return nil
}
func (f *fakeProvider) EstablishCredentials(ctx context.Context) error { return f.establishErr }
func (f *fakeProvider) OpenSession(ctx context.Context) error          { return nil }
func (f *fakeProvider) ReinitializeCredentials(ctx context.Context) error {
	f.reinitializeCalled = true
	return f.reinitializeErr
}
func (f *fakeProvider) MappedUser(ctx context.Context) (string, error) {
	return f.mappedUser, f.mappedUserErr
}
func (f *fakeProvider) PutEnv(ctx context.Context, nameValue string) error {
	f.putEnvCalls = append(f.putEnvCalls, nameValue)
	return nil
}
func (f *fakeProvider) Env(ctx context.Context) ([]string, error) { return []string{"PAMVAR=1"}, nil }
func (f *fakeProvider) Cleanup(ctx context.Context, target credential.State) error { return nil }

var _ credential.Provider = (*fakeProvider)(nil)

func setupSeat(t *testing.T) (passwd, shells, sessionsDir string) {
	t.Helper()
	dir := t.TempDir()
	passwd = filepath.Join(dir, "passwd")
	if err := os.WriteFile(passwd, []byte("alice:x:1000:1000:Alice:"+dir+"/home/alice:/bin/bash\n"), 0o644); err != nil {
		t.Fatalf("write passwd: %v", err)
	}
	shells = filepath.Join(dir, "shells")
	if err := os.WriteFile(shells, []byte("/bin/bash\n"), 0o644); err != nil {
		t.Fatalf("write shells: %v", err)
	}
	sessionsDir = filepath.Join(dir, "sessions")
	if err := os.MkdirAll(sessionsDir, 0o755); err != nil {
		t.Fatalf("mkdir sessions: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sessionsDir, "plasma.desktop"), []byte("Exec=/bin/echo\n"), 0o644); err != nil {
		t.Fatalf("write desktop entry: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "home", "alice"), 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	return passwd, shells, sessionsDir
}

func TestLaunchSuccess(t *testing.T) {
	passwd, shells, sessionsDir := setupSeat(t)
	reqr := &fakeRequester{sessionID: 7, env: []string{"BROKERVAR=2"}, displayName: ":0"}
	prov := &fakeProvider{mappedUser: "alice"}

	cfg := Config{
		SessionsDir:    sessionsDir,
		SessionCommand: "/bin/true",
		DefaultPath:    "/usr/local/bin:/usr/bin:/bin",
		PasswdFile:     passwd,
		ShellsFile:     shells,
		TestingMode:    true,
	}
	req := credential.Request{User: "alice", Session: "plasma.desktop", Passwordless: true}

	result, err := Launch(context.Background(), req, prov, reqr, cfg)
	if err != nil {
		t.Fatalf("Launch() = %v", err)
	}
	if result.SessionName != "Session7" {
		t.Errorf("SessionName = %q, want Session7", result.SessionName)
	}
	if result.MappedUser != "alice" {
		t.Errorf("MappedUser = %q, want alice", result.MappedUser)
	}
	if len(reqr.cookieCalls) != 1 {
		t.Fatalf("cookieCalls = %v, want exactly one call", reqr.cookieCalls)
	}
	if !prov.reinitializeCalled {
		t.Error("ReinitializeCredentials was not called")
	}
	if err := result.Wait(); err != nil {
		t.Errorf("Wait() = %v", err)
	}

	foundHome, foundPath := false, false
	for _, kv := range prov.putEnvCalls {
		if kv == "HOME="+filepath.Dir(passwd)+"/home/alice" {
			foundHome = true
		}
		if kv == "PATH="+cfg.DefaultPath {
			foundPath = true
		}
	}
	if !foundHome {
		t.Errorf("PutEnv calls = %v, want a HOME= entry for the resolved home dir", prov.putEnvCalls)
	}
	if !foundPath {
		t.Errorf("PutEnv calls = %v, want a PATH= entry for %q", prov.putEnvCalls, cfg.DefaultPath)
	}
}

func TestLaunchMissingExecFails(t *testing.T) {
	passwd, shells, sessionsDir := setupSeat(t)
	if err := os.WriteFile(filepath.Join(sessionsDir, "broken.desktop"), []byte("[Desktop Entry]\n"), 0o644); err != nil {
		t.Fatalf("write broken entry: %v", err)
	}

	cfg := Config{SessionsDir: sessionsDir, SessionCommand: "/bin/true", PasswdFile: passwd, ShellsFile: shells, TestingMode: true}
	req := credential.Request{User: "alice", Session: "broken.desktop", Passwordless: true}

	_, err := Launch(context.Background(), req, &fakeProvider{}, &fakeRequester{}, cfg)
	if !brokererr.Is(err, brokererr.ConfigMissing) {
		t.Errorf("Launch() = %v, want ConfigMissing", err)
	}
}

func TestLaunchUnknownUserFails(t *testing.T) {
	_, shells, sessionsDir := setupSeat(t)
	cfg := Config{SessionsDir: sessionsDir, SessionCommand: "/bin/true", PasswdFile: "/nonexistent/passwd", ShellsFile: shells, TestingMode: true}
	req := credential.Request{User: "ghost", Session: "plasma.desktop", Passwordless: true}

	_, err := Launch(context.Background(), req, &fakeProvider{}, &fakeRequester{}, cfg)
	if !brokererr.Is(err, brokererr.UserUnknown) {
		t.Errorf("Launch() = %v, want UserUnknown", err)
	}
}

func TestLaunchCookieLinkFailurePreventsSpawn(t *testing.T) {
	passwd, shells, sessionsDir := setupSeat(t)
	cfg := Config{SessionsDir: sessionsDir, SessionCommand: "/bin/true", PasswdFile: passwd, ShellsFile: shells, TestingMode: true}
	req := credential.Request{User: "alice", Session: "plasma.desktop", Passwordless: true}
	reqr := &fakeRequester{cookieErr: context.DeadlineExceeded}

	_, err := Launch(context.Background(), req, &fakeProvider{}, reqr, cfg)
	if err == nil {
		t.Error("Launch() with failing cookie link = nil error, want error")
	}
}
