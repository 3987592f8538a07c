package rules

import (
	"fmt"
	"os"
	"path/filepath"
)

// BackdoorRulesYAML contains the shipped backdoor detection rules.
// They are never loaded implicitly: a scan only ever sees the ruleset
// directory it was pointed at. Use MaterializeBackdoorRules (the
// init-rules command) to write them out as a starting ruleset.
const BackdoorRulesYAML = `
version: "1.0"
rules:
  # ============================================
  # CRITICAL - Active compromise indicators
  # ============================================

  - id: backdoor-reverse-shell
    name: "Reverse Shell"
    description: "Source spawns a reverse shell back to an attacker-controlled host"
    severity: critical
    confidence: high
    patterns:
      - type: regex
        value: "nc\\s+(-[a-z]+\\s+)*-e\\s"
      - type: substring
        value: "/dev/tcp/"
      - type: regex
        value: "bash\\s+-i\\s+>&"
      - type: regex
        value: "mkfifo\\s+/tmp/"
    tags: [shell, reverse-shell]

  - id: backdoor-curl-pipe-shell
    name: "Remote Script Execution"
    description: "Downloads and executes a remote script in one step"
    severity: critical
    confidence: medium
    patterns:
      - type: regex
        value: "(curl|wget)[^|;&]*\\|\\s*(ba)?sh"
    tags: [network, dropper]

  - id: backdoor-encoded-eval
    name: "Obfuscated Code Execution"
    description: "Evaluates dynamically decoded code, a common payload-hiding technique"
    severity: critical
    confidence: medium
    patterns:
      - type: regex
        value: "eval\\s*\\(\\s*(atob|Buffer\\.from|base64)"
      - type: regex
        value: "exec\\s*\\(\\s*(base64|codecs)\\.(b64)?decode"
      - type: regex
        value: "eval\\s*\\(\\s*String\\.fromCharCode"
    tags: [obfuscation, eval]

  # ============================================
  # HIGH - Strong suspicion
  # ============================================

  - id: backdoor-credential-harvest
    name: "Credential Harvesting"
    description: "Reads credential material or token stores"
    severity: high
    confidence: medium
    patterns:
      - type: substring
        value: ".ssh/id_rsa"
      - type: substring
        value: ".aws/credentials"
      - type: substring
        value: ".npmrc"
      - type: regex
        value: "(AWS_SECRET_ACCESS_KEY|GITHUB_TOKEN|NPM_TOKEN)"
    tags: [credentials, exfiltration]

  - id: backdoor-dynamic-eval
    name: "Dynamic Code Evaluation"
    description: "Runtime code evaluation from constructed strings"
    severity: high
    confidence: low
    patterns:
      - type: substring
        value: "eval("
      - type: regex
        value: "new\\s+Function\\s*\\("
      - type: substring
        value: "vm.runInThisContext"
    applies_to: ["*.js", "*.ts", "*.mjs", "*.cjs"]
    tags: [eval]

  - id: backdoor-install-hook-network
    name: "Install Hook With Network Access"
    description: "Install-time script contacts the network"
    severity: high
    confidence: medium
    patterns:
      - type: regex
        value: "\"(pre|post)?install\"\\s*:\\s*\"[^\"]*(curl|wget|http)"
    applies_to: ["package.json"]
    tags: [install-hook, network]

  # ============================================
  # MEDIUM - Worth review
  # ============================================

  - id: backdoor-hardcoded-ip
    name: "Hardcoded IP Endpoint"
    description: "Connects to a raw IP address instead of a hostname"
    severity: medium
    confidence: low
    patterns:
      - type: regex
        value: "(https?|ftp)://\\d{1,3}\\.\\d{1,3}\\.\\d{1,3}\\.\\d{1,3}"
    tags: [network]

  - id: backdoor-paste-site
    name: "Paste Site or Tunnel Endpoint"
    description: "References a paste site or tunneling service commonly used for staging payloads"
    severity: medium
    confidence: medium
    patterns:
      - type: regex
        value: "(pastebin\\.com|ngrok\\.io|webhook\\.site|requestbin)"
    tags: [network, c2]
`

// MaterializeBackdoorRules writes the shipped ruleset into dir,
// creating it if needed. Returns the path of the written file.
func MaterializeBackdoorRules(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create ruleset directory: %w", err)
	}

	// Sanity check: the shipped rules must always parse
	if _, err := ParseYAML([]byte(BackdoorRulesYAML)); err != nil {
		return "", fmt.Errorf("built-in ruleset is invalid: %w", err)
	}

	path := filepath.Join(dir, "backdoor_rules.yaml")
	if err := os.WriteFile(path, []byte(BackdoorRulesYAML), 0644); err != nil {
		return "", fmt.Errorf("failed to write ruleset: %w", err)
	}
	return path, nil
}

// DefaultRulesDir returns the default directory for the ruleset
func DefaultRulesDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".ossgadget", "rules")
}
