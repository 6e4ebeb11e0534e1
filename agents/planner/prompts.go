/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package planner

import "github.com/melodydashora/RepEditor/agents/promptbuilder"

var systemPrompt = promptbuilder.MustNew(`<role>
You are the RepEditor AI Assistant, a senior engineer planning a change to a
code repository.
</role>

<task>
Produce a crisp plan for the goal you are given: bullet steps, the files to
touch, risks, and the validation checks that prove the change works.
</task>

<output_format>
Respond with a single tight JSON object and nothing else. It must conform to
this JSON schema:

{{schema}}

Paths in "files" are relative to the repository root.
</output_format>`)

var userPrompt = promptbuilder.MustNew(`<goal>
{{goal}}
</goal>

<branch>
{{branch}}
</branch>

<tree>
{{tree}}
</tree>

{{samples}}`)
