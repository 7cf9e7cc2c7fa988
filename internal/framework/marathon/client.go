package marathon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/armadaproject/mesoscoordinator/internal/common/coordcontext"
	"github.com/armadaproject/mesoscoordinator/internal/common/httpclient"
)

const (
	pingPath = "/ping"
	infoPath = "/v2/info"
	appsPath = "/v2/apps"
)

type Info struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	FrameworkId string `json:"frameworkId"`
}

type PortMapping struct {
	ContainerPort int
	HostPort      int
}

// Application is a Marathon app creation request.
type Application struct {
	Id           string
	Command      string
	Args         []string
	ImageName    string
	ImageVersion string
	Cpus         float64
	MemoryMb     int64
	PortMappings []PortMapping
	Environment  map[string]string
}

func (a *Application) Image() string {
	if a.ImageVersion == "" {
		return a.ImageName
	}
	return a.ImageName + ":" + a.ImageVersion
}

// RequestError is returned when Marathon answers with an unexpected status.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Retryable is false for client errors, which will fail the same way every time.
func (e *RequestError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

func (e *RequestError) Conflict() bool {
	return e.StatusCode == http.StatusConflict
}

var createAppTemplate = template.Must(template.New("create-app").Funcs(template.FuncMap{
	"json": func(v interface{}) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}).Parse(`{
  "id": {{ json .Id }},
{{- if .Command }}
  "cmd": {{ json .Command }},
{{- end }}
{{- if .Args }}
  "args": {{ json .Args }},
{{- end }}
  "cpus": {{ .Cpus }},
  "mem": {{ .MemoryMb }},
  "instances": 1,
  "container": {
    "type": "DOCKER",
    "docker": {
      "image": {{ json .Image }},
      "network": "BRIDGE",
      "portMappings": [
{{- range $i, $p := .PortMappings }}{{ if $i }},{{ end }}
        { "containerPort": {{ $p.ContainerPort }}, "hostPort": {{ $p.HostPort }}, "protocol": "tcp" }
{{- end }}
      ]
    }
  },
  "env": {{ json .Environment }}
}
`))

// Client talks to the Marathon REST API.
type Client struct {
	url    string
	client *retryablehttp.Client
}

func NewClient(url string, config httpclient.Config) *Client {
	return &Client{
		url:    strings.TrimSuffix(url, "/"),
		client: httpclient.New(config, log.WithField("marathon", url)),
	}
}

// Ping returns true if Marathon answered /ping with 200.
func (c *Client) Ping(ctx *coordcontext.Context) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, pingPath, nil)
	if err != nil {
		return false, err
	}
	defer drainAndClose(resp)
	return resp.StatusCode == http.StatusOK, nil
}

func (c *Client) Info(ctx *coordcontext.Context) (*Info, error) {
	info := &Info{}
	if err := c.getJson(ctx, infoPath, info); err != nil {
		return nil, err
	}
	return info, nil
}

// Apps returns the ids of every application Marathon runs.
func (c *Client) Apps(ctx *coordcontext.Context) ([]string, error) {
	response := struct {
		Apps []struct {
			Id string `json:"id"`
		} `json:"apps"`
	}{}
	if err := c.getJson(ctx, appsPath, &response); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(response.Apps))
	for _, app := range response.Apps {
		ids = append(ids, app.Id)
	}
	return ids, nil
}

func (c *Client) CreateApplication(ctx *coordcontext.Context, app *Application) error {
	body := &bytes.Buffer{}
	if err := createAppTemplate.Execute(body, app); err != nil {
		return errors.Wrapf(err, "error rendering create request for application %s", app.Id)
	}
	resp, err := c.do(ctx, http.MethodPost, appsPath, body.Bytes())
	if err != nil {
		return err
	}
	defer drainAndClose(resp)
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return c.requestError(http.MethodPost, appsPath, resp)
	}
	ctx.Log.Debugf("Created Marathon application %s", app.Id)
	return nil
}

// DeleteApplication destroys the application. Deleting an application Marathon does not know is not an error.
func (c *Client) DeleteApplication(ctx *coordcontext.Context, id string) error {
	path := appsPath + "/" + strings.TrimPrefix(id, "/")
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)
	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return c.requestError(http.MethodDelete, path, resp)
	}
}

func (c *Client) getJson(ctx *coordcontext.Context, path string, into interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)
	if resp.StatusCode != http.StatusOK {
		return c.requestError(http.MethodGet, path, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return errors.Wrapf(err, "error decoding %s%s", c.url, path)
	}
	return nil
}

func (c *Client) do(ctx *coordcontext.Context, method string, path string, body []byte) (*http.Response, error) {
	var rawBody interface{}
	if body != nil {
		rawBody = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.url+path, rawBody)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s%s failed", method, c.url, path)
	}
	return resp, nil
}

func (c *Client) requestError(method string, path string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return errors.WithStack(&RequestError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	})
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
