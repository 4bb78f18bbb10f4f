/*
Package config loads and validates llmopt run settings.

	            +-------------+
	            |   Config    |
	            | (defaults)  |
	            +------+------+
	                   |
	     +-------------+-------------+
	     |             |             |
	+----+----+   +----+----+   +----+----+
	|  YAML   |   |   HCL   |   |  JSON   |
	| Parser  |   | Parser  |   | Parser  |
	+---------+   +---------+   +---------+

🎯 Purpose:
- Picks a parser by file extension (extensionless .llmopt files may be YAML or HCL)
- Rejects unknown keys in every format
- Fills defaults for anything left out, so a missing file and an empty file behave the same

🔄 Flow:
 1. Find locates .llmopt.{yaml,yml,hcl,json} or .llmopt in a directory
 2. Load parses it with the registered parser
 3. Validate fills defaults and checks ranges
 4. Callers read typed helpers (Filter, StatusOptions, Mode, TransientDelay...)

Zero-valued retry ceilings mean unbounded retries. An explicit zero for
llm.cache_size or rate.tokens_per_minute disables that feature, while leaving
the key out keeps the default.

🔍 Example:

	cfg, err := config.Load(ctx, ".llmopt.yaml")
	if err != nil {
		return err
	}
	store, err := status.Open(ctx, cfg.StatusOptions())
*/
package config
