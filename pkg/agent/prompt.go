package agent

import (
	_ "embed"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/callgpt/pkg/knowledge"
)

//go:embed prompts.yaml
var promptsYAML []byte

// Prompts is the static persona of the agent.
type Prompts struct {
	Persona        string `yaml:"persona"`
	KnowledgeIntro string `yaml:"knowledge_intro"`
	Greeting       string `yaml:"greeting"`
}

func DefaultPrompts() (Prompts, error) {
	return ParsePrompts(promptsYAML)
}

func ParsePrompts(data []byte) (Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Prompts{}, errors.Wrap(err, "parse prompts")
	}
	if strings.TrimSpace(p.Persona) == "" {
		return Prompts{}, errors.New("prompts: empty persona")
	}
	return p, nil
}

// SystemPrompt joins the persona with the knowledge snapshot.
func (p Prompts) SystemPrompt(snap knowledge.Snapshot) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.Persona))
	if intro := strings.TrimSpace(p.KnowledgeIntro); intro != "" {
		b.WriteString(" ")
		b.WriteString(intro)
		b.WriteString(" ")
	}
	b.WriteString(snap.PromptLines())
	return b.String()
}
