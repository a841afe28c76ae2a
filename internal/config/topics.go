package config

const (
	// TopicWorkflowRun carries one RunTask per requested workflow pass.
	TopicWorkflowRun = "workflow.run"

	// ChannelWorkflowRun is the channel the pipeline workers share.
	ChannelWorkflowRun = "pipeline"
)
