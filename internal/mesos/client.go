// Package mesos polls the Mesos master of a cluster.
package mesos

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/armadaproject/mesoscoordinator/internal/common/coordcontext"
	"github.com/armadaproject/mesoscoordinator/internal/common/httpclient"
)

const (
	healthPath = "/master/health"
	statePath  = "/master/state.json"
	tasksPath  = "/master/tasks.json"
)

// Task states reported by the master.
const (
	TaskStaging  = "TASK_STAGING"
	TaskStarting = "TASK_STARTING"
	TaskRunning  = "TASK_RUNNING"
	TaskFinished = "TASK_FINISHED"
	TaskFailed   = "TASK_FAILED"
	TaskKilled   = "TASK_KILLED"
	TaskLost     = "TASK_LOST"
	TaskError    = "TASK_ERROR"
)

// TaskRecord is a single entry of the master's task list.
type TaskRecord struct {
	Id          string `json:"id"`
	Name        string `json:"name"`
	State       string `json:"state"`
	FrameworkId string `json:"framework_id"`
}

func (t TaskRecord) IsRunning() bool {
	return t.State == TaskRunning
}

type tasksResponse struct {
	Tasks []TaskRecord `json:"tasks"`
}

// MasterState is the subset of /master/state.json surfaced as cluster status.
type MasterState struct {
	Cluster string `json:"cluster"`
	Id      string `json:"id"`
	Version string `json:"version"`
}

// MasterClient is the view of the Mesos master the coordinator depends on.
type MasterClient interface {
	Health(ctx *coordcontext.Context) (bool, error)
	State(ctx *coordcontext.Context) (*MasterState, error)
	Tasks(ctx *coordcontext.Context) ([]TaskRecord, error)
}

type Client struct {
	url    string
	client *retryablehttp.Client
}

func NewClient(url string, config httpclient.Config) *Client {
	return &Client{
		url:    strings.TrimSuffix(url, "/"),
		client: httpclient.New(config, log.WithField("master", url)),
	}
}

func (c *Client) Url() string {
	return c.url
}

// Health returns true if the master answered its health endpoint with 200.
// A transport failure is returned as an error alongside false.
func (c *Client) Health(ctx *coordcontext.Context) (bool, error) {
	resp, err := c.get(ctx, healthPath)
	if err != nil {
		return false, err
	}
	defer drainAndClose(resp)
	return resp.StatusCode == http.StatusOK, nil
}

func (c *Client) State(ctx *coordcontext.Context) (*MasterState, error) {
	state := &MasterState{}
	if err := c.getJson(ctx, statePath, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (c *Client) Tasks(ctx *coordcontext.Context) ([]TaskRecord, error) {
	response := &tasksResponse{}
	if err := c.getJson(ctx, tasksPath, response); err != nil {
		return nil, err
	}
	return response.Tasks, nil
}

func (c *Client) getJson(ctx *coordcontext.Context, path string, into interface{}) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("GET %s%s returned status %d", c.url, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return errors.Wrapf(err, "error decoding %s%s", c.url, path)
	}
	return nil
}

func (c *Client) get(ctx *coordcontext.Context, path string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.url+path, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("GET %s%s failed", c.url, path))
	}
	return resp, nil
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
