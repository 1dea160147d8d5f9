// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command workspace loads, builds and serves multi-language solutions.
//
// Usage:
//
//	workspace load ./all.sln.yaml
//	workspace build ./all.sln.yaml
//	workspace serve ./all.sln.yaml --config ~/.aleutian/workspace.yaml
//
// Settings come from the optional YAML config file, then WORKSPACE_*
// environment variables, then command line flags.
//
// Example requests against serve:
//
//	curl http://localhost:7420/v1/workspace/projects | jq
//	curl -X PUT http://localhost:7420/v1/workspace/documents/<id>/text \
//	  -H "Content-Type: application/json" -d '{"text": "package app\n"}'
package main

import (
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
