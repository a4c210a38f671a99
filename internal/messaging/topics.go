package messaging

// Topic constants for the mining client's external event fan-out.
const (
	// TopicSolutions carries accepted and rejected submission outcomes.
	TopicSolutions = "powminer.solutions"
	// TopicRegistration carries per-address registration progress.
	TopicRegistration = "powminer.registration"
	// TopicWorkerStats carries per-worker hash-rate progress.
	TopicWorkerStats = "powminer.worker_stats"
	// TopicDevFee carries dev-fee obligation triggers and draws.
	TopicDevFee = "powminer.dev_fee"
	// TopicStatus carries Coordinator lifecycle transitions.
	TopicStatus = "powminer.status"
)
