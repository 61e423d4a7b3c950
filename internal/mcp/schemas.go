package mcp

// toolSchemas describes the two exposed tools in JSON-Schema form
func toolSchemas() []map[string]interface{} {
	return []map[string]interface{}{
		{
			"name":        ToolCheckStatus,
			"description": "Check whether the requested files are safe to work on: reports the remote head, active locks on the files and their graph neighbors, and an orchestration verdict.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"repo_url": map[string]interface{}{
						"type":        "string",
						"description": "Repository URL",
					},
					"branch": map[string]interface{}{
						"type":        "string",
						"description": "Branch name; defaults to master, falling back to main",
					},
					"file_paths": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Repo-relative paths the caller intends to touch",
					},
					"agent_head": map[string]interface{}{
						"type":        "string",
						"description": "Commit sha of the caller's local HEAD",
					},
					"username": map[string]interface{}{
						"type":        "string",
						"description": "Caller identity; defaults to anonymous",
					},
				},
				"required": []string{"repo_url", "file_paths", "agent_head"},
			},
		},
		{
			"name":        ToolPostStatus,
			"description": "Announce a state transition: acquire READING or WRITING locks on files, or release them with OPEN. Returns the written locks or the orchestration explaining why not.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"repo_url": map[string]interface{}{
						"type":        "string",
						"description": "Repository URL",
					},
					"branch": map[string]interface{}{
						"type":        "string",
						"description": "Branch name; defaults to master, falling back to main",
					},
					"file_paths": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Repo-relative paths the transition covers",
					},
					"status": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"OPEN", "READING", "WRITING"},
						"description": "OPEN releases; READING and WRITING acquire",
					},
					"message": map[string]interface{}{
						"type":        "string",
						"description": "One-line description of the work",
					},
					"agent_head": map[string]interface{}{
						"type":        "string",
						"description": "Commit sha of the caller's local HEAD; required for READING and WRITING",
					},
					"new_repo_head": map[string]interface{}{
						"type":        "string",
						"description": "Remote head after the caller's push; used by OPEN to detect unpushed work",
					},
					"username": map[string]interface{}{
						"type":        "string",
						"description": "Caller identity; defaults to anonymous",
					},
				},
				"required": []string{"repo_url", "file_paths", "status", "message"},
			},
		},
	}
}
