// Package agentloop runs a single-query agent that talks to a chat model in
// structured steps.
//
// Each model turn must be one JSON object whose "step" field is THINK,
// ACTION or OUTPUT. ACTION steps name a tool from a fixed registry; the tool
// result is sent back as a user message {"step":"OBSERVE","content":...}.
// A run ends when the model emits OUTPUT, when its output cannot be parsed,
// when the model call fails, or when the step budget is spent.
//
// # Architecture
//
//   - Agent: drives turns, threading an explicit RunState through Turn.
//   - Profile: a tool variant (basic or workspace) and its system prompt.
//   - ToolRegistry: the immutable tool set; unknown names yield
//     *UnknownToolError, which the loop reports as an observation.
//   - ExecutionEnvironment: where file and command tools run.
//   - CommandPolicy: the deny-list checked before any command is spawned.
//   - EventEmitter: typed event stream for host application integration.
//
// # Quick Start
//
//	profile := agentloop.NewWorkspaceProfile("gpt-4o-mini", agentloop.DefaultToolOptions())
//	env := agentloop.NewLocalExecutionEnvironment("/path/to/project")
//	agent := agentloop.NewAgent(profile, env, agentloop.WithLogger(slog.Default()))
//	defer agent.Close()
//
//	result, err := agent.Run(ctx, "what is inside my package.json file?")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Output)
package agentloop
