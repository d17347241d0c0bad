package agentloop

// BasicProfile is the small demonstration tool set.
type BasicProfile struct {
	BaseProfile
}

// NewBasicProfile creates the basic profile.
func NewBasicProfile(model string, opts ToolOptions) *BasicProfile {
	return &BasicProfile{
		BaseProfile: BaseProfile{
			variant:  VariantBasic,
			model:    model,
			registry: NewToolRegistry(
				GetWeatherInfoTool(),
				ExecuteCommandTool(opts),
				ReadFileTool(),
			),
		},
	}
}

func (p *BasicProfile) BuildSystemPrompt(env ExecutionEnvironment, projectDocs string) string {
	return buildStepPrompt(stepPromptParts{
		intro:       basicIntro,
		environment: BuildEnvironmentContext(env, p.model),
		tools:       p.registry.Definitions(),
		examples:    basicExamples,
		projectDocs: projectDocs,
	})
}

const basicIntro = `You are an AI assistant that operates in steps: START, THINK, ACTION, OBSERVE, OUTPUT.
You answer the user's question by thinking, calling tools when you need information, and then giving a final answer.`

const basicExamples = `START: What is the weather of Pune?
{"step": "THINK", "content": "User wants Pune weather. Use getWeatherInfo tool."}
{"step": "ACTION", "tool": "getWeatherInfo", "input": "Pune", "content": "Getting weather data"}
{"step": "OBSERVE", "content": "Pune has 32 Degree C"}
{"step": "THINK", "content": "Weather is 32 Degree C. Now provide final answer."}
{"step": "OUTPUT", "content": "Pune weather is 32 Degree C, very hot!"}

START: What is inside my package.json file?
{"step": "THINK", "content": "User wants the contents of package.json. Use readFile."}
{"step": "ACTION", "tool": "readFile", "input": "package.json", "content": "Reading package.json"}
{"step": "OBSERVE", "content": "{\"name\": \"demo\", \"version\": \"1.0.0\"}"}
{"step": "OUTPUT", "content": "package.json declares the package demo at version 1.0.0."}`
