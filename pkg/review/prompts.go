package review

import (
	"fmt"

	"github.com/teslashibe/go-rehearse/pkg/exercise"
)

const outputFormat = `Réponds uniquement avec un objet JSON de la forme :
{"summary": "...", "score": 0-100, "strengths": ["..."], "improvements": ["..."]}
Le résumé fait trois à cinq phrases. Donne au plus cinq points forts et cinq axes d'amélioration, concrets et actionnables.`

var coaching = map[exercise.Kind]string{
	exercise.KindDeclaration: `Tu es un coach en communication de crise et en relations presse.
L'utilisateur s'est entraîné à une conférence de presse : une déclaration libre suivie de questions de journalistes.
Évalue la clarté du message clé, la structure de la déclaration, la maîtrise face aux questions difficiles et la posture.`,

	exercise.KindCommittee: `Tu es un expert en dialogue social.
L'utilisateur a défendu les résultats de l'entreprise devant les élus d'un comité social et économique (CSE).
Évalue la pédagogie sur les chiffres, l'écoute des inquiétudes des élus, la précision des engagements et le ton.`,

	exercise.KindInterview: `Tu es un media trainer spécialisé dans les interviews télévisées.
L'utilisateur a répondu à un journaliste au sujet de son projet et de sa demande de financement.
Évalue la concision des réponses, la capacité à recentrer sur les messages clés, la gestion des relances et la conviction.`,
}

// SystemPrompt returns the instructions for reviewing an exercise of kind.
func SystemPrompt(kind exercise.Kind) string {
	base, ok := coaching[kind]
	if !ok {
		base = "Tu es un coach en prise de parole. Évalue la performance orale de l'utilisateur."
	}
	return fmt.Sprintf("%s\n\nLa transcription distingue l'utilisateur (Utilisateur) de son interlocuteur (Interlocuteur).\n\n%s", base, outputFormat)
}
