package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create jobs table
			CREATE TABLE jobs (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(100) NOT NULL,
				type VARCHAR(50) NOT NULL CHECK (type IN ('http', 'shell', 'sql', 'script')),
				config JSONB NOT NULL DEFAULT '{}',
				cron_expr VARCHAR(255),
				retry_count INT NOT NULL DEFAULT 0,
				retry_interval_sec INT NOT NULL DEFAULT 0,
				timeout_sec INT NOT NULL DEFAULT 0,
				enabled BOOLEAN NOT NULL DEFAULT true,
				alert_on_failure BOOLEAN NOT NULL DEFAULT false,
				alert_on_timeout BOOLEAN NOT NULL DEFAULT false,
				alert_channels JSONB,
				params_schema JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_jobs_enabled ON jobs(enabled);
			CREATE INDEX idx_jobs_type ON jobs(type);
			CREATE INDEX idx_jobs_created_at ON jobs(created_at);

			-- Create flows table
			CREATE TABLE flows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(100) NOT NULL,
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB,
				error_strategy VARCHAR(50),
				max_parallel INT NOT NULL DEFAULT 0,
				enabled BOOLEAN NOT NULL DEFAULT true,
				cron_expr VARCHAR(255),
				alert_channels JSONB,
				params_schema JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_flows_enabled ON flows(enabled);
			CREATE INDEX idx_flows_created_at ON flows(created_at);

			-- Create job_runs table
			CREATE TABLE job_runs (
				id UUID PRIMARY KEY,
				trace_id UUID NOT NULL,
				job_id VARCHAR(255) NOT NULL,
				trigger_mode VARCHAR(50) NOT NULL,
				trigger_user VARCHAR(255),
				status VARCHAR(50) NOT NULL,
				start_time TIMESTAMP WITH TIME ZONE NOT NULL,
				end_time TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				input_params JSONB,
				result TEXT,
				error_msg TEXT,
				attempt INT NOT NULL DEFAULT 0,
				prev_attempt_id UUID,
				flow_run_id UUID,
				node_id VARCHAR(255)
			);

			CREATE INDEX idx_job_runs_job_id ON job_runs(job_id);
			CREATE INDEX idx_job_runs_trace_id ON job_runs(trace_id);
			CREATE INDEX idx_job_runs_flow_run_id ON job_runs(flow_run_id);
			CREATE INDEX idx_job_runs_status ON job_runs(status);
			CREATE INDEX idx_job_runs_start_time ON job_runs(start_time);

			-- Create flow_runs table
			CREATE TABLE flow_runs (
				id UUID PRIMARY KEY,
				flow_id VARCHAR(255) NOT NULL,
				trigger_mode VARCHAR(50) NOT NULL,
				trigger_user VARCHAR(255),
				status VARCHAR(50) NOT NULL,
				start_time TIMESTAMP WITH TIME ZONE NOT NULL,
				end_time TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				input_params JSONB,
				node_statuses JSONB NOT NULL DEFAULT '{}',
				node_runs JSONB NOT NULL DEFAULT '{}',
				failed_nodes JSONB,
				skipped_nodes JSONB,
				error_msg TEXT
			);

			CREATE INDEX idx_flow_runs_flow_id ON flow_runs(flow_id);
			CREATE INDEX idx_flow_runs_status ON flow_runs(status);
			CREATE INDEX idx_flow_runs_start_time ON flow_runs(start_time);

			-- Create alerts table
			CREATE TABLE alerts (
				id UUID PRIMARY KEY,
				kind VARCHAR(50) NOT NULL,
				job_id VARCHAR(255),
				flow_id VARCHAR(255),
				run_id VARCHAR(255),
				title TEXT NOT NULL,
				body TEXT NOT NULL,
				channels JSONB,
				status VARCHAR(50) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				sent_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_alerts_job_id ON alerts(job_id);
			CREATE INDEX idx_alerts_flow_id ON alerts(flow_id);
			CREATE INDEX idx_alerts_created_at ON alerts(created_at);
		`,
	}
}
