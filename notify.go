package main

type Notifier interface {
	NotifyRunResults(conn ConnectorConfig, executionID string, results []RunResult) error
}
