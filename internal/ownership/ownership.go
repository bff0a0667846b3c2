// Package ownership проверяет права пользователя на репозиторий через API хостинга.
package ownership

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/gitup-custody/internal/domain"
)

const (
	ProviderGitHub = "github"
	ProviderGitLab = "gitlab"

	defaultTimeout = 10 * time.Second
	maxBodySize    = 1 << 20

	// Уровни доступа GitLab.
	gitlabMaintainer = 40
	gitlabOwner      = 50
)

// Result – итог проверки прав. Достаточно любого из флагов.
type Result struct {
	IsOwner bool
	IsAdmin bool
}

// Allowed сообщает, достаточно ли прав.
func (r Result) Allowed() bool {
	return r.IsOwner || r.IsAdmin
}

// Verifier проверяет права по репозиторию от имени пользователя.
type Verifier interface {
	Verify(ctx context.Context, provider, repoFullName, accessToken string) (Result, error)
}

// HTTPVerifier ходит в REST API GitHub и GitLab с токеном пользователя.
type HTTPVerifier struct {
	githubURL  string
	gitlabURL  string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewHTTPVerifier(githubURL, gitlabURL string, logger *zap.Logger) *HTTPVerifier {
	return &HTTPVerifier{
		githubURL:  strings.TrimRight(githubURL, "/"),
		gitlabURL:  strings.TrimRight(gitlabURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.Named("ownership"),
	}
}

// Verify возвращает AuthorizationError при любой ошибке вызова: отсутствие
// ответа никогда не трактуется как наличие прав.
func (v *HTTPVerifier) Verify(ctx context.Context, provider, repoFullName, accessToken string) (Result, error) {
	if accessToken == "" {
		return Result{}, domain.AuthorizationError("missing repository access token", nil)
	}
	if strings.Count(repoFullName, "/") < 1 {
		return Result{}, domain.InvalidRequestError("repository must be in owner/name form", nil)
	}

	var (
		res Result
		err error
	)
	switch strings.ToLower(provider) {
	case ProviderGitHub, "":
		res, err = v.verifyGitHub(ctx, repoFullName, accessToken)
	case ProviderGitLab:
		res, err = v.verifyGitLab(ctx, repoFullName, accessToken)
	default:
		return Result{}, domain.InvalidRequestError("unsupported repository provider: "+provider, nil)
	}
	if err != nil {
		v.logger.Warn("Ownership verification failed",
			zap.String("provider", provider),
			zap.String("repo", repoFullName),
			zap.Error(err))
		return Result{}, domain.AuthorizationError("repository ownership verification failed", err)
	}

	v.logger.Debug("Ownership verified",
		zap.String("repo", repoFullName),
		zap.Bool("is_owner", res.IsOwner),
		zap.Bool("is_admin", res.IsAdmin))
	return res, nil
}

type githubUser struct {
	Login string `json:"login"`
}

type githubRepo struct {
	FullName string `json:"full_name"`
	Owner    struct {
		Login string `json:"login"`
	} `json:"owner"`
	Permissions struct {
		Admin bool `json:"admin"`
	} `json:"permissions"`
}

func (v *HTTPVerifier) verifyGitHub(ctx context.Context, repoFullName, token string) (Result, error) {
	headers := map[string]string{
		"Authorization":        "Bearer " + token,
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
	}

	var user githubUser
	if err := v.getJSON(ctx, v.githubURL+"/user", headers, &user); err != nil {
		return Result{}, fmt.Errorf("github user: %w", err)
	}
	var repo githubRepo
	if err := v.getJSON(ctx, v.githubURL+"/repos/"+repoFullName, headers, &repo); err != nil {
		return Result{}, fmt.Errorf("github repo: %w", err)
	}

	return Result{
		IsOwner: user.Login != "" && strings.EqualFold(user.Login, repo.Owner.Login),
		IsAdmin: repo.Permissions.Admin,
	}, nil
}

type gitlabAccess struct {
	AccessLevel int `json:"access_level"`
}

type gitlabProject struct {
	PathWithNamespace string `json:"path_with_namespace"`
	Permissions       struct {
		ProjectAccess *gitlabAccess `json:"project_access"`
		GroupAccess   *gitlabAccess `json:"group_access"`
	} `json:"permissions"`
}

func (v *HTTPVerifier) verifyGitLab(ctx context.Context, repoFullName, token string) (Result, error) {
	headers := map[string]string{"Authorization": "Bearer " + token}

	var project gitlabProject
	if err := v.getJSON(ctx, v.gitlabURL+"/projects/"+url.PathEscape(repoFullName), headers, &project); err != nil {
		return Result{}, fmt.Errorf("gitlab project: %w", err)
	}

	level := 0
	for _, access := range []*gitlabAccess{project.Permissions.ProjectAccess, project.Permissions.GroupAccess} {
		if access != nil && access.AccessLevel > level {
			level = access.AccessLevel
		}
	}
	return Result{
		IsOwner: level >= gitlabOwner,
		IsAdmin: level >= gitlabMaintainer,
	}, nil
}

func (v *HTTPVerifier) getJSON(ctx context.Context, rawURL string, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	for k, val := range headers {
		req.Header.Set(k, val)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(out)
}

var _ Verifier = (*HTTPVerifier)(nil)
