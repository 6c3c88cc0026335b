package config

const (
	// TopicPipelineRun is the NSQ topic for update pipeline runs (scan, embed, index).
	TopicPipelineRun = "pipeline.run"

	// ChannelPipelineWorker is the channel the pipeline worker consumes from.
	ChannelPipelineWorker = "worker"
)
