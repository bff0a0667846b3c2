package ownership

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/gitup-custody/internal/domain"
)

func githubServer(t *testing.T, login, owner string, admin bool, repoStatus int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/user":
			_, _ = w.Write([]byte(`{"login":"` + login + `"}`))
		case "/repos/octo/widget":
			if repoStatus != http.StatusOK {
				w.WriteHeader(repoStatus)
				return
			}
			adminStr := "false"
			if admin {
				adminStr = "true"
			}
			_, _ = w.Write([]byte(`{"full_name":"octo/widget","owner":{"login":"` + owner + `"},"permissions":{"admin":` + adminStr + `}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerifyGitHub(t *testing.T) {
	tests := []struct {
		name      string
		login     string
		owner     string
		admin     bool
		status    int
		want      Result
		wantAllow bool
		wantErr   bool
	}{
		{name: "literal owner, case-insensitive", login: "Octo", owner: "octo", status: 200, want: Result{IsOwner: true}, wantAllow: true},
		{name: "collaborator with admin", login: "alice", owner: "octo", admin: true, status: 200, want: Result{IsAdmin: true}, wantAllow: true},
		{name: "plain collaborator", login: "bob", owner: "octo", status: 200, want: Result{}},
		{name: "api failure denies", login: "octo", owner: "octo", status: http.StatusForbidden, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := githubServer(t, tt.login, tt.owner, tt.admin, tt.status)
			v := NewHTTPVerifier(srv.URL, srv.URL, zaptest.NewLogger(t))

			res, err := v.Verify(context.Background(), ProviderGitHub, "octo/widget", "tok")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, domain.IsKind(err, domain.KindAuthorization))
				assert.False(t, res.Allowed())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, res)
			assert.Equal(t, tt.wantAllow, res.Allowed())
		})
	}
}

func TestVerifyGitLab(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Result
	}{
		{name: "owner", body: `{"permissions":{"project_access":{"access_level":50}}}`, want: Result{IsOwner: true, IsAdmin: true}},
		{name: "maintainer via group", body: `{"permissions":{"project_access":{"access_level":30},"group_access":{"access_level":40}}}`, want: Result{IsAdmin: true}},
		{name: "developer", body: `{"permissions":{"project_access":{"access_level":30}}}`, want: Result{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/projects/group%2Fproject", r.URL.EscapedPath())
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			v := NewHTTPVerifier(srv.URL, srv.URL, zaptest.NewLogger(t))
			res, err := v.Verify(context.Background(), ProviderGitLab, "group/project", "tok")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res)
		})
	}
}

func TestVerifyRejectsBadInput(t *testing.T) {
	v := NewHTTPVerifier("http://127.0.0.1:1", "http://127.0.0.1:1", zaptest.NewLogger(t))

	_, err := v.Verify(context.Background(), ProviderGitHub, "octo/widget", "")
	assert.True(t, domain.IsKind(err, domain.KindAuthorization))

	_, err = v.Verify(context.Background(), ProviderGitHub, "widget", "tok")
	assert.True(t, domain.IsKind(err, domain.KindInvalidRequest))

	_, err = v.Verify(context.Background(), "bitbucket", "octo/widget", "tok")
	assert.True(t, domain.IsKind(err, domain.KindInvalidRequest))
}

func TestVerifyUnreachableIsDenied(t *testing.T) {
	v := NewHTTPVerifier("http://127.0.0.1:1", "http://127.0.0.1:1", zaptest.NewLogger(t))
	res, err := v.Verify(context.Background(), ProviderGitHub, "octo/widget", "tok")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindAuthorization))
	assert.False(t, res.Allowed())
}
