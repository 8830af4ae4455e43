package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/geusemaker/geusemaker/support/awsapi"
	"github.com/geusemaker/geusemaker/support/awsutil"
)

const (
	// remoteExecTimeout bounds one remote script end to end.
	remoteExecTimeout = 900 * time.Second
	remotePollEvery   = 5 * time.Second
)

// CommandRunner executes shell scripts on a deployed instance through the
// provider's remote-exec channel.
type CommandRunner struct {
	ssm awsapi.SSMAPI
	log logr.Logger
}

// NewCommandRunner builds a CommandRunner.
func NewCommandRunner(client awsapi.SSMAPI, log logr.Logger) *CommandRunner {
	return &CommandRunner{ssm: client, log: log}
}

// Run submits script to instanceID and blocks until the invocation finishes,
// returning its stdout. A non-success terminal status is an error carrying
// the invocation's stderr.
func (r *CommandRunner) Run(ctx context.Context, instanceID, script string) (string, error) {
	sendOut, err := r.ssm.SendCommand(ctx, &ssm.SendCommandInput{
		InstanceIds:    []string{instanceID},
		DocumentName:   aws.String("AWS-RunShellScript"),
		Parameters:     map[string][]string{"commands": {script}},
		TimeoutSeconds: aws.Int32(int32(remoteExecTimeout / time.Second)),
	})
	if err != nil {
		return "", awsutil.WrapProvider("send remote command", err)
	}
	commandID := aws.ToString(sendOut.Command.CommandId)
	r.log.Info("Submitted remote command", "instance", instanceID, "command", commandID)

	var final *ssm.GetCommandInvocationOutput
	err = wait.PollUntilContextTimeout(ctx, remotePollEvery, remoteExecTimeout, true, func(ctx context.Context) (bool, error) {
		out, invErr := r.ssm.GetCommandInvocation(ctx, &ssm.GetCommandInvocationInput{
			CommandId:  aws.String(commandID),
			InstanceId: aws.String(instanceID),
		})
		if invErr != nil {
			// The invocation record lags the send by a few seconds.
			if awsutil.IsErrorCode(invErr, "InvocationDoesNotExist") {
				return false, nil
			}
			return false, invErr
		}
		switch out.Status {
		case ssmtypes.CommandInvocationStatusSuccess,
			ssmtypes.CommandInvocationStatusFailed,
			ssmtypes.CommandInvocationStatusCancelled,
			ssmtypes.CommandInvocationStatusTimedOut:
			final = out
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return "", fmt.Errorf("remote command %s on %s never finished: %w", commandID, instanceID, err)
	}
	if final.Status != ssmtypes.CommandInvocationStatusSuccess {
		return "", fmt.Errorf("remote command %s on %s ended %s: %s",
			commandID, instanceID, final.Status, aws.ToString(final.StandardErrorContent))
	}
	return aws.ToString(final.StandardOutputContent), nil
}
