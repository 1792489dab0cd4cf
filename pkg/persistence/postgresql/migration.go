package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				webhook_token VARCHAR(255),
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				archived_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE UNIQUE INDEX idx_workflows_webhook_token ON workflows(webhook_token)
				WHERE webhook_token IS NOT NULL;

			CREATE TABLE executions (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL,
				status VARCHAR(50) NOT NULL,
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_created_at ON executions(created_at);

			CREATE TABLE execution_steps (
				id UUID PRIMARY KEY,
				execution_id UUID NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				step_order INT NOT NULL,
				data JSONB NOT NULL
			);

			CREATE INDEX idx_execution_steps_execution_id ON execution_steps(execution_id);

			CREATE TABLE schedules (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL,
				enabled BOOLEAN NOT NULL DEFAULT true,
				auto_disabled BOOLEAN NOT NULL DEFAULT false,
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_schedules_workflow_id ON schedules(workflow_id);

			CREATE TABLE credentials (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				integration_type VARCHAR(100) NOT NULL,
				encrypted_data BYTEA NOT NULL,
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
		`,
	}
}
