package vetting

import (
	"fmt"
	"strings"

	"github.com/scrimworks/vendorvet/internal/model"
)

// domainFocus describes what each risk domain's researcher investigates. The
// focus text is embedded in both the research query and the fact-sheet
// instruction for that domain.
var domainFocus = map[model.Domain]struct {
	title    string
	focus    string
	sections string
}{
	model.DomainFinance: {
		title: "Finance",
		focus: "the vendor's financial obligations, stability, and risks stemming from their operations. " +
			"Financial risk is the condition in which a supplier cannot generate revenue or income resulting " +
			"in the inability to meet financial obligations, generally due to high fixed costs, illiquid " +
			"assets, or revenues sensitive to economic downturns.",
		sections: "Financial risk and stability analysis, indicating potential risks and vulnerabilities, " +
			"and assessing the vendor's ability to meet financial obligations.",
	},
	model.DomainPolitical: {
		title: "Political & Regulatory",
		focus: "the vendor's foreign political connections and potential to be influenced by foreign " +
			"entities, including terrorism risk, government policy changes, systematic corruption, and " +
			"energy crises in the international marketplace.",
		sections: "Risk considerations due to terrorism, government policy, systematic corruption, and energy scarcity.",
	},
	model.DomainFOCI: {
		title: "Foreign Ownership, Control, or Influence",
		focus: "risk associated with the vendor due to foreign ownership, control, and/or influence (FOCI). " +
			"A company operates under FOCI whenever a foreign interest has the power, direct or indirect, " +
			"whether or not exercised, to direct or decide matters affecting the management or operations " +
			"of that company in a manner which may adversely affect national security.",
		sections: "Foreign ownership, control, and influence (FOCI) concerns regarding the vendor.",
	},
	model.DomainCompliance: {
		title: "Compliance",
		focus: "the vendor's compliance with regulations and laws. Compliance risk is the inability to " +
			"comply with a wide-arching set of guidelines, policies, laws, and/or agreements established " +
			"to avoid impact to national security.",
		sections: "Vendor compliance satisfaction and history (legal, regulatory, industry standards, best practices).",
	},
	model.DomainCybersecurity: {
		title: "Technology & Cybersecurity",
		focus: "the vendor's technology and cybersecurity mitigation strategies, including their approach " +
			"to risk management, incident response plans, and compliance with industry standards. Common " +
			"risks include weaknesses in computation logic found in software and hardware components that, " +
			"when exploited, result in a negative impact to confidentiality, integrity or availability.",
		sections: "Vendor cybersecurity compliance satisfaction and history. Technology stack and risk assessment. " +
			"Physical security assessment.",
	},
	model.DomainManufacturing: {
		title: "Manufacturing & Supply",
		focus: "the vendor's manufacturing and supply capacity, expected demand, and potential material " +
			"delivery disruptions like production delays and supply chain sourcing issues, including " +
			"sole-source and single-country concentration creating over-reliance.",
		sections: "Manufacturing and supply capacity and constraints. Likelihood of equipment downtime or failure. " +
			"Alternative suppliers and sources of relevant materials.",
	},
	model.DomainLogistics: {
		title: "Logistics",
		focus: "the vendor's transportation and logistics challenges, potential shipping delays, and " +
			"infrastructure issues, including accidents, losses of cargo, driver shortages, and " +
			"deteriorating infrastructure.",
		sections: "Logistics challenges related to the relevant region. Risk assessment of accident, cargo loss, " +
			"and infrastructure failure. Past delivery performance and reliability.",
	},
	model.DomainQuality: {
		title: "Quality & Design",
		focus: "the quality and design considerations of the vendor's products. Quality risk occurs due to " +
			"inherent design and quality problems in which the part does not meet performance specifications " +
			"and quality standards set by industry, including counterfeit and non-spec parts.",
		sections: "Product materials, specifications, and performance analysis. Compliance with desired " +
			"specification. Testing and certification history. Common or known issues and defects.",
	},
}

// researchQuery is the sub-query assigned to one domain's researcher.
func researchQuery(vendor string, domain model.Domain) string {
	d := domainFocus[domain]
	return fmt.Sprintf("Investigate %s: %s", vendor, d.focus)
}

// searchQuery is the web search issued before the domain fact sheet is written.
func searchQuery(vendor string, domain model.Domain) string {
	d := domainFocus[domain]
	return fmt.Sprintf("%s %s risk assessment: %s", vendor, strings.ToLower(d.title), d.focus)
}

// researchInstruction builds the fact-sheet instruction for one domain,
// embedding the search material gathered for it.
func researchInstruction(vendor string, domain model.Domain, query, searchMaterial, docMaterial string) string {
	d := domainFocus[domain]

	var b strings.Builder
	fmt.Fprintf(&b, `You are a vendor vetting investigator specializing in %s risk.
Your goal is to assess the vendor %q based on the research material below.

Your assigned query:
%s

Research material from web search:
---
%s
---
`, strings.ToLower(d.title), vendor, query, searchMaterial)

	if docMaterial != "" {
		fmt.Fprintf(&b, `
Additional curated document reporting (cite these as Babel documents with title):
---
%s
---
`, docMaterial)
	}

	fmt.Fprintf(&b, `
Produce a sourced fact sheet as a JSON object with exactly these keys:
- "subject_matter": what was investigated
- "findings": %s
- "vulnerabilities": vulnerabilities related to the subject matter
- "threats": potential threats related to the subject matter
- "sources": array of source URLs and references used

Do not include an executive summary, a conclusion, or a recommendation.
Cite every claim drawn from the research material.`, d.sections)

	return b.String()
}

// synthesisInstruction assembles the fact sheets into the final synthesis
// prompt. Unavailable domains are included by name with an explicit note so
// the synthesis accounts for missing coverage.
func synthesisInstruction(vendor string, reports map[model.Domain]model.DomainReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You have fact sheets from several different researchers that analyzed
the vendor %q across supply chain risk categories.

Synthesize them into a single comprehensive risk report with a risk score and
a recommended course of action.

# Researcher Fact Sheets:
`, vendor)

	for _, domain := range model.Domains() {
		report, ok := reports[domain]
		fmt.Fprintf(&b, "\n## %s\n", domainFocus[domain].title)
		if !ok || report.Unavailable {
			b.WriteString("Research for this category was unavailable. Note the coverage gap in the report.\n")
			continue
		}
		fmt.Fprintf(&b, "Subject Matter: %s\nFindings: %s\nVulnerabilities: %s\nThreats: %s\n",
			report.SubjectMatter, report.Findings, report.Vulnerabilities, report.Threats)
	}

	b.WriteString(`
Respond as a JSON object with exactly these keys:
- "findings": the comprehensive synthesized report in markdown
- "risk_score": overall risk from 0 (negligible) to 10 (severe)
- "course_of_action": the recommended course of action
- "citations": array of all source references carried over from the fact sheets

Do not mention that you are synthesizing multiple responses. Provide only the
synthesized report, score, and course of action.`)

	return b.String()
}
