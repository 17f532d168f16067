package utils

import (
	"strings"
)

// serviceTypeAliases maps common user-facing spellings (Portuguese and
// English, singular and plural) onto the canonical service type tags
// persisted on a posto.
var serviceTypeAliases = map[string]string{
	"atendimento_medico":  "atendimento_medico",
	"atendimento medico":  "atendimento_medico",
	"atendimento médico":  "atendimento_medico",
	"consulta":            "atendimento_medico",
	"medical_care":        "atendimento_medico",
	"vacina":              "vacinas",
	"vacinas":             "vacinas",
	"vacinacao":           "vacinas",
	"vacinação":           "vacinas",
	"vaccine":             "vacinas",
	"vaccines":            "vacinas",
	"exame":               "exames",
	"exames":              "exames",
	"exams":               "exames",
	"medicamento":         "medicamentos",
	"medicamentos":        "medicamentos",
	"medication":          "medicamentos",
	"farmacia":            "medicamentos",
	"farmácia":            "medicamentos",
	"curativo":            "curativos",
	"curativos":           "curativos",
	"dressing":            "curativos",
	"pronto_atendimento":  "pronto_atendimento",
	"pronto atendimento":  "pronto_atendimento",
	"emergencia":          "pronto_atendimento",
	"emergência":          "pronto_atendimento",
	"urgent_care":         "pronto_atendimento",
	"consultas_agendadas": "consultas_agendadas",
	"consultas agendadas": "consultas_agendadas",
	"consulta_agendada":   "consultas_agendadas",
	"scheduled":           "consultas_agendadas",
}

// NormalizeServiceType resolves a user-supplied service type to its
// canonical tag. The second return reports whether the input was
// recognized.
func NormalizeServiceType(input string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(input))
	canonical, ok := serviceTypeAliases[key]
	return canonical, ok
}
