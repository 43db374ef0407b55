package queue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	appErr "github.com/datacloud-project/orchestrator/pkg/errors"
)

const (
	// MsgVersion is bumped whenever the payload shape changes so downstream
	// consumers can reject messages they do not understand.
	MsgVersion = "1.1.0"

	TypeDeploymentCreate = "deployment:create"
	TypeDeploymentDelete = "deployment:delete"
)

// CreateDeploymentMessage is the handoff payload consumed by the
// provisioning pipeline. It is self-contained: the consumer never calls back
// into the REST API to resolve the template or the caller's credentials.
type CreateDeploymentMessage struct {
	MsgVersion   string `json:"msg_version"`
	DeploymentID string `json:"deployment_id"`

	Template       string         `json:"template"`
	TemplateInputs map[string]any `json:"template_inputs"`

	UserGroup       string `json:"user_group"`
	UserGroupIssuer string `json:"user_group_issuer"`

	PerProviderMaxRetries int    `json:"per_provider_max_retries"`
	MaxProviders          *int   `json:"max_providers"`
	TotalTimeout          int    `json:"timeout"`
	PerProviderTimeout    int    `json:"per_provider_timeout"`
	KeepLastAttempt       bool   `json:"keep_last_attempt"`
	TargetProvider        string `json:"target_provider,omitempty"`
	TargetRegion          string `json:"target_region,omitempty"`

	OwnersSSHKeys []string `json:"owners_ssh_keys,omitempty"`
	AccessToken   string   `json:"access_token,omitempty"`
	RefreshToken  string   `json:"refresh_token,omitempty"`
}

type DeleteDeploymentMessage struct {
	MsgVersion   string `json:"msg_version"`
	DeploymentID string `json:"deployment_id"`
	AccessToken  string `json:"access_token,omitempty"`
}

// Enqueuer is the producer surface the deployment service depends on.
type Enqueuer interface {
	EnqueueDeploymentCreate(ctx context.Context, msg *CreateDeploymentMessage) error
	EnqueueDeploymentDelete(ctx context.Context, msg *DeleteDeploymentMessage) error
	Close() error
}

// Client publishes deployment lifecycle tasks over asynq. The deployment id
// doubles as the task id so a retried HTTP request cannot enqueue the same
// deployment twice.
type Client struct {
	inner *asynq.Client
}

func NewClient(redisAddr, redisPassword string) *Client {
	return &Client{inner: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr, Password: redisPassword})}
}

func (c *Client) EnqueueDeploymentCreate(ctx context.Context, msg *CreateDeploymentMessage) error {
	msg.MsgVersion = MsgVersion
	return c.enqueue(ctx, TypeDeploymentCreate, msg.DeploymentID, msg)
}

func (c *Client) EnqueueDeploymentDelete(ctx context.Context, msg *DeleteDeploymentMessage) error {
	msg.MsgVersion = MsgVersion
	return c.enqueue(ctx, TypeDeploymentDelete, "delete:"+msg.DeploymentID, msg)
}

func (c *Client) enqueue(ctx context.Context, taskType, taskID string, payload any) error {
	if _, err := uuid.Parse(lastIDSegment(taskID)); err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "task id is not a deployment id")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "encode task payload failed")
	}
	task := asynq.NewTask(taskType, body)
	_, err = c.inner.EnqueueContext(ctx, task, asynq.TaskID(taskID), asynq.MaxRetry(5))
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return appErr.New(appErr.CodeConflict, "deployment task already enqueued")
		}
		return appErr.Wrap(err, appErr.CodeUnavailable, "enqueue deployment task failed")
	}
	return nil
}

func (c *Client) Close() error { return c.inner.Close() }

func lastIDSegment(taskID string) string {
	for i := len(taskID) - 1; i >= 0; i-- {
		if taskID[i] == ':' {
			return taskID[i+1:]
		}
	}
	return taskID
}
