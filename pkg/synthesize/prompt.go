package synthesize

import (
	"fmt"
)

// maxContentChars caps the file content embedded in one summarization
// prompt.
const maxContentChars = 100_000

// buildPrompt is the canonical per-file summarization prompt for pipeline
// runs.
func buildPrompt(filename, content string) string {
	if len(content) > maxContentChars {
		content = content[:maxContentChars]
	}
	return fmt.Sprintf(`You are preparing a condensed technical reference from documentation pages.

Summarize the following documentation content as a well-structured Markdown section.

Requirements:
- Start with a level-2 heading naming the subject of this content.
- Preserve code blocks that show usage, configuration, or API calls.
- Capture key concepts, parameters, defaults, and caveats as concise bullet points.
- Include a short FAQ subsection if the content answers common questions.
- Exclude navigation menus, cookie banners, footers, and other page chrome.
- Do not invent information that is not present in the content.

Source file: %s

Content:
%s`, filename, content)
}
