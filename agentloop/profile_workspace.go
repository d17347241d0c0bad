package agentloop

// WorkspaceProfile can create and edit files in the working directory.
type WorkspaceProfile struct {
	BaseProfile
}

// NewWorkspaceProfile creates the workspace profile.
func NewWorkspaceProfile(model string, opts ToolOptions) *WorkspaceProfile {
	return &WorkspaceProfile{
		BaseProfile: BaseProfile{
			variant:  VariantWorkspace,
			model:    model,
			registry: NewToolRegistry(
				ReadFileTool(),
				WriteFileTool(),
				ExecuteCommandTool(opts),
				CreateDirectoryTool(),
			),
		},
	}
}

func (p *WorkspaceProfile) BuildSystemPrompt(env ExecutionEnvironment, projectDocs string) string {
	return buildStepPrompt(stepPromptParts{
		intro:       workspaceIntro,
		environment: BuildEnvironmentContext(env, p.model),
		tools:       p.registry.Definitions(),
		rules:       []string{
			"Prefer writeFile over shell redirection to create or change files.",
			"Use relative paths; they resolve against the working directory.",
			"Read a file before changing it.",
		},
		examples:    workspaceExamples,
		projectDocs: projectDocs,
	})
}

const workspaceIntro = `You are a coding assistant that operates in steps: START, THINK, ACTION, OBSERVE, OUTPUT.
You complete the user's task in the working directory by reading files, writing files, creating directories and running commands.`

const workspaceExamples = `START: Create a todo list app
{"step": "THINK", "content": "User wants a todo app. First check what already exists."}
{"step": "ACTION", "tool": "executeCommand", "input": "ls", "content": "Listing files"}
{"step": "OBSERVE", "content": "stdout: README.md\nstderr: "}
{"step": "ACTION", "tool": "createDirectory", "input": "todoapp", "content": "Creating the app directory"}
{"step": "OBSERVE", "content": "Directory ready: todoapp"}
{"step": "ACTION", "tool": "writeFile", "input": {"path": "todoapp/index.html", "content": "<html><body><h1>Todo</h1><script src=\"script.js\"></script></body></html>"}, "content": "Writing the HTML page"}
{"step": "OBSERVE", "content": "Successfully wrote 78 bytes to todoapp/index.html"}
{"step": "THINK", "content": "Page written. Now the script."}
{"step": "OUTPUT", "content": "Created todoapp/index.html. Open it in a browser to start."}`
