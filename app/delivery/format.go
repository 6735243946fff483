package delivery

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/france-chomage/jobcomb/app/database"
)

const (
	maxTitleLength       = 80
	maxDescriptionLength = 200
)

// markdownEscaper maps the characters MarkdownV2 reserves to their
// escaped forms.
var markdownEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"[", "\\[",
	"]", "\\]",
	"(", "\\(",
	")", "\\)",
	"~", "\\~",
	"`", "\\`",
	">", "\\>",
	"#", "\\#",
	"+", "\\+",
	"-", "\\-",
	"=", "\\=",
	"|", "\\|",
	"{", "\\{",
	"}", "\\}",
	".", "\\.",
	"!", "\\!",
)

// EscapeMarkdown escapes the MarkdownV2 reserved character set.
func EscapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

// Truncate shortens text to limit runes, appending an ellipsis marker
// when anything was cut.
func Truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

// FormatJobMessage renders one posting as a MarkdownV2 message.
// Optional fields are omitted entirely when absent.
func FormatJobMessage(job database.Job, category, location string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🎯 *%s*\n\n", EscapeMarkdown(Truncate(job.Title, maxTitleLength)))
	fmt.Fprintf(&b, "🏢 *%s*\n", EscapeMarkdown(job.Company))
	fmt.Fprintf(&b, "📍 %s\n", EscapeMarkdown(job.Location))
	fmt.Fprintf(&b, "📅 Publié le : %s\n", EscapeMarkdown(job.DatePosted.Format("02/01/2006")))

	if job.IsRemote {
		b.WriteString("🏠 Télétravail possible\n")
	}
	if job.SalaryText != "" {
		fmt.Fprintf(&b, "💰 %s\n", EscapeMarkdown(job.SalaryText))
	}

	fmt.Fprintf(&b, "\n🔗 [Postuler ici](%s)\n", job.JobURL)

	if job.Description != "" {
		fmt.Fprintf(&b, "\n📝 %s", EscapeMarkdown(Truncate(job.Description, maxDescriptionLength)))
	}

	fmt.Fprintf(&b, "\n\n%s", EscapeMarkdown(hashtags(job.Site, category, location)))

	return b.String()
}

// FormatJobMessagePlain renders the same content without any markup,
// used when the transport rejects the rich payload.
func FormatJobMessagePlain(job database.Job, category, location string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🎯 %s\n\n", Truncate(job.Title, maxTitleLength))
	fmt.Fprintf(&b, "🏢 %s\n", job.Company)
	fmt.Fprintf(&b, "📍 %s\n", job.Location)
	fmt.Fprintf(&b, "📅 Publié le : %s\n", job.DatePosted.Format("02/01/2006"))

	if job.IsRemote {
		b.WriteString("🏠 Télétravail possible\n")
	}
	if job.SalaryText != "" {
		fmt.Fprintf(&b, "💰 %s\n", job.SalaryText)
	}

	fmt.Fprintf(&b, "\n🔗 Postuler ici : %s\n", job.JobURL)

	if job.Description != "" {
		fmt.Fprintf(&b, "\n📝 %s", Truncate(job.Description, maxDescriptionLength))
	}

	fmt.Fprintf(&b, "\n\n%s", hashtags(job.Site, category, location))

	return b.String()
}

// DigestEntry is one category's line in the daily digest.
type DigestEntry struct {
	Category string
	Stored   int
	Sent     int
	Errors   int
}

var headingCaser = cases.Title(language.French)

// FormatDigest renders the daily summary for the overview topic.
func FormatDigest(entries []DigestEntry, rich bool) string {
	var b strings.Builder

	if rich {
		b.WriteString("📊 *Résumé des offres*\n")
	} else {
		b.WriteString("📊 Résumé des offres\n")
	}

	totalSent := 0
	for _, entry := range entries {
		line := fmt.Sprintf("• %s : %d envoyées, %d nouvelles", headingCaser.String(entry.Category), entry.Sent, entry.Stored)
		if entry.Errors > 0 {
			line += fmt.Sprintf(" (%d erreurs)", entry.Errors)
		}
		if rich {
			line = EscapeMarkdown(line)
		}

		b.WriteString("\n" + line)
		totalSent += entry.Sent
	}

	summary := fmt.Sprintf("Total : %d offres envoyées", totalSent)
	if rich {
		summary = EscapeMarkdown(summary)
	}
	b.WriteString("\n\n" + summary)

	return b.String()
}

func hashtags(site, category, location string) string {
	locTag := strings.ReplaceAll(location, " ", "")
	return fmt.Sprintf("#%s #%s #%s #emploi", site, category, locTag)
}
