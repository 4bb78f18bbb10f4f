/*
Package llm is the rate-limited client for the transformation service.

	+-----------+      +-----------+      +-----------+
	|  Prompter | ---> |  Client   | ---> |  Service  |
	| (prefix)  |      | (retry,   |      | (OpenAI)  |
	+-----------+      |  cache)   |      +-----------+
	                   +-----+-----+
	                         |
	                   +-----+-----+
	                   |  Limiter  |
	                   | (shared)  |
	                   +-----------+

🎯 Purpose:
- Send one prompt, get one completion
- Back off on throttles (service wait × margin) and transient errors (fixed delay)
- Memoize identical prompts within a run
- Pace requests and account tokens per minute

⚡ Error kinds:
- throttle: retried after the wait the service asked for, plus margin
- transient: retried after a fixed delay
- invalid: returned at once as ErrInvalidInput
- canceled: returned at once

Retry ceilings are optional. A zero ceiling retries forever, which blocks the
calling worker until the service recovers.

🔍 Example:

	client, err := llm.NewClient(llm.Options{
		Service: svc,
		Limiter: llm.NewLimiter(0, llm.DefaultTokensPerMinute),
	})
	out, err := client.Transform(ctx, prompt)
*/
package llm
