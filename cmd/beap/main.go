// Command beap is the reference CLI: key management, policy authoring,
// package building, inbound import, admin package lifecycle, and CAS
// bundle exchange.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"beap.dev/beap/admin"
	"beap.dev/beap/beap"
	"beap.dev/beap/ingress"
	"beap.dev/beap/keys"
	"beap.dev/beap/policy"
	"beap.dev/beap/storage"
	"beap.dev/beap/storage/bundle"
	"beap.dev/beap/storage/localfs"
	"beap.dev/beap/storage/registry"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}
	switch args[0] {
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "policy":
		return cmdPolicy(args[1:], out, errOut)
	case "build":
		return cmdBuild(args[1:], out, errOut)
	case "import":
		return cmdImport(args[1:], out, errOut)
	case "resolve":
		return cmdResolve(args[1:], out, errOut)
	case "admin":
		return cmdAdmin(args[1:], out, errOut)
	case "bundle":
		return cmdBundle(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "beap: build, distribute, and import policy-bound message packages")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  beap key <init|derive|list|export> ...")
	fmt.Fprintln(w, "  beap policy <init|validate|hash|risk|diff|lockdown> ...")
	fmt.Fprintln(w, "  beap build --mode <qBEAP|pBEAP> ...")
	fmt.Fprintln(w, "  beap import --source <channel> [flags] <file>")
	fmt.Fprintln(w, "  beap resolve (--accept | --reject) [flags] <message-id>")
	fmt.Fprintln(w, "  beap admin <create|sign|verify|apply> ...")
	fmt.Fprintln(w, "  beap bundle <export|import> ...")
	fmt.Fprintln(w, "  beap help")
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// loadSigner resolves the shared signer flag triple the way key-consuming
// subcommands expect it: exactly one of --seed-hex, --signer, --key-file.
func loadSigner(seedHex, signerName, signerRole, keyFile string, errOut io.Writer) (*keys.Ed25519Signer, int) {
	if seedHex == "" && signerName == "" && keyFile == "" {
		fmt.Fprintln(errOut, "missing signer: use --seed-hex, --signer, or --key-file")
		return nil, 2
	}
	if seedHex != "" && (signerName != "" || keyFile != "") {
		fmt.Fprintln(errOut, "conflicting signer flags: --seed-hex cannot be combined with --signer or --key-file")
		return nil, 2
	}
	if signerName != "" && keyFile != "" {
		fmt.Fprintln(errOut, "conflicting signer flags: --signer cannot be combined with --key-file")
		return nil, 2
	}
	ks, err := keys.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return nil, 1
	}
	signer, err := ks.Signer(seedHex, signerName, signerRole, keyFile)
	if err != nil {
		fmt.Fprintf(errOut, "invalid signer: %v\n", err)
		return nil, 2
	}
	return signer, 0
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "export":
		return cmdKeyExport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "beap key: minimal local key management")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  beap key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  beap key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  beap key list")
	fmt.Fprintln(w, "  beap key export --name <name> [--role <role>]")
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var seedHex string
	var force bool

	fs.StringVar(&name, "name", "", "Key name (directory under ~/.beap/keys)")
	fs.StringVar(&seedHex, "seed-hex", "", "Optional ed25519 seed as 64 hex chars (for reproducible demos)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := keys.CheckKeyName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}
	ks, err := keys.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}

	var seed []byte
	if seedHex != "" {
		var derr error
		seed, derr = keys.ParseSeedHex(seedHex)
		if derr != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", derr)
			return 2
		}
	} else {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			fmt.Fprintf(errOut, "rand: %v\n", err)
			return 1
		}
	}

	senderKey, rootPath, err := ks.InitializeRootKey(name, seed, force)
	if err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created root key: %s\n", senderKey)
	fmt.Fprintf(out, "Stored at: %s\n", rootPath)
	return 0
}

func cmdKeyDerive(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key derive", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var from string
	var role string
	var force bool

	fs.StringVar(&from, "from", "", "Root key name")
	fs.StringVar(&role, "role", "", "Role identifier (e.g. sender, admin)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if from == "" {
		fmt.Fprintln(errOut, "missing --from")
		return 2
	}
	if role == "" {
		fmt.Fprintln(errOut, "missing --role")
		return 2
	}
	if err := keys.CheckKeyName(from); err != nil {
		fmt.Fprintf(errOut, "invalid --from: %v\n", err)
		return 2
	}
	if err := keys.CheckRole(role); err != nil {
		fmt.Fprintf(errOut, "invalid --role: %v\n", err)
		return 2
	}
	ks, err := keys.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	senderKey, rolePath, err := ks.DeriveKeyFromRole(from, role, force)
	if err != nil {
		fmt.Fprintf(errOut, "derive role key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created role key: %s\n", senderKey)
	fmt.Fprintf(out, "Stored at: %s\n", rolePath)
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, err := keys.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	entries, err := ks.ListKeys()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s\n", e.Identifier)
		for _, r := range e.Roles {
			fmt.Fprintf(out, "  - %s\n", r)
		}
	}
	return 0
}

func cmdKeyExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key export", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var role string

	fs.StringVar(&name, "name", "", "Key name")
	fs.StringVar(&role, "role", "", "Optional role (if set, exports derived role key)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := keys.CheckKeyName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}
	if role != "" {
		if err := keys.CheckRole(role); err != nil {
			fmt.Fprintf(errOut, "invalid --role: %v\n", err)
			return 2
		}
	}
	ks, err := keys.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	senderKey, err := ks.ExportKey(name, role)
	if err != nil {
		fmt.Fprintf(errOut, "export key: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, senderKey)
	return 0
}

func cmdPolicy(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printPolicyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdPolicyInit(args[1:], out, errOut)
	case "validate":
		return cmdPolicyValidate(args[1:], out, errOut)
	case "hash":
		return cmdPolicyHash(args[1:], out, errOut)
	case "risk":
		return cmdPolicyRisk(args[1:], out, errOut)
	case "diff":
		return cmdPolicyDiff(args[1:], out, errOut)
	case "lockdown":
		return cmdPolicyLockdown(args[1:], out, errOut)
	case "help", "-h", "--help":
		printPolicyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown policy subcommand: %s\n\n", args[0])
		printPolicyUsage(errOut)
		return 2
	}
}

func printPolicyUsage(w io.Writer) {
	fmt.Fprintln(w, "beap policy: author and inspect canonical policies")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  beap policy init --layer <local|network|admin> --template <restrictive|standard|permissive>")
	fmt.Fprintln(w, "  beap policy validate <file>")
	fmt.Fprintln(w, "  beap policy hash <file>")
	fmt.Fprintln(w, "  beap policy risk <file>")
	fmt.Fprintln(w, "  beap policy diff --old <file> --new <file>")
	fmt.Fprintln(w, "  beap policy lockdown <file>")
}

func readPolicyFile(path string) (policy.CanonicalPolicy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return policy.CanonicalPolicy{}, err
	}
	return policy.Deserialize(b)
}

func cmdPolicyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("policy init", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var layer string
	var template string

	fs.StringVar(&layer, "layer", string(policy.LayerLocal), "Policy layer: local, network, or admin")
	fs.StringVar(&template, "template", string(policy.TemplateStandard), "Template: restrictive, standard, or permissive")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	p, err := policy.NewDefaultPolicy(policy.Layer(layer), policy.Template(template))
	if err != nil {
		fmt.Fprintf(errOut, "policy init: %v\n", err)
		return 2
	}
	b, err := policy.Serialize(&p)
	if err != nil {
		fmt.Fprintf(errOut, "serialize: %v\n", err)
		return 1
	}
	_, _ = out.Write(b)
	_, _ = fmt.Fprintln(out)
	return 0
}

func cmdPolicyValidate(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("policy validate", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: beap policy validate <file>")
		return 2
	}
	p, err := readPolicyFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read policy: %v\n", err)
		return 1
	}
	res := policy.Validate(&p)
	if !res.OK {
		for _, v := range res.Violations {
			fmt.Fprintf(errOut, "%s: %s\n", v.RuleID, v.Message)
		}
		return 1
	}
	fmt.Fprintln(out, "OK")
	return 0
}

func cmdPolicyHash(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("policy hash", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: beap policy hash <file>")
		return 2
	}
	p, err := readPolicyFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read policy: %v\n", err)
		return 1
	}
	h, err := policy.Hash(&p)
	if err != nil {
		fmt.Fprintf(errOut, "hash: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, h)
	return 0
}

func cmdPolicyRisk(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("policy risk", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: beap policy risk <file>")
		return 2
	}
	p, err := readPolicyFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read policy: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, policy.CalculateRiskTier(&p))
	return 0
}

func cmdPolicyDiff(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("policy diff", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var oldPath string
	var newPath string

	fs.StringVar(&oldPath, "old", "", "Old policy file")
	fs.StringVar(&newPath, "new", "", "New policy file")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if oldPath == "" || newPath == "" {
		fmt.Fprintln(errOut, "missing --old or --new")
		return 2
	}
	oldP, err := readPolicyFile(oldPath)
	if err != nil {
		fmt.Fprintf(errOut, "read --old: %v\n", err)
		return 1
	}
	newP, err := readPolicyFile(newPath)
	if err != nil {
		fmt.Fprintf(errOut, "read --new: %v\n", err)
		return 1
	}
	d := policy.Diff(&oldP, &newP)
	if d.Empty() {
		fmt.Fprintln(out, "no changes")
		return 0
	}
	printDiffEntries := func(label string, entries []policy.DiffEntry) {
		for _, e := range entries {
			fmt.Fprintf(out, "%s\t%s\t%s\n", label, e.Key, e.RiskImpact)
		}
	}
	printDiffEntries("added", d.Added)
	printDiffEntries("removed", d.Removed)
	printDiffEntries("modified", d.Modified)
	return 0
}

func cmdPolicyLockdown(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("policy lockdown", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: beap policy lockdown <file>")
		return 2
	}
	p, err := readPolicyFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read policy: %v\n", err)
		return 1
	}
	locked := policy.Lockdown(&p)
	b, err := policy.Serialize(&locked)
	if err != nil {
		fmt.Fprintf(errOut, "serialize: %v\n", err)
		return 1
	}
	_, _ = out.Write(b)
	_, _ = fmt.Fprintln(out)
	return 0
}

func cmdBuild(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var mode string
	var subject string
	var body string
	var bodyFile string
	var encryptedMessage string
	var attachPaths stringList
	var recipientHandshake string
	var recipientName string
	var recipientOrg string
	var sessionKeyHex string
	var templateID string
	var policyPath string
	var hashAlg string
	var deliveryMethod string
	var deliveryHint string
	var outPath string
	var seedHex string
	var signerName string
	var signerRole string
	var keyFile string
	var requireEncrypted bool
	var tagsEncryptedOnly bool

	fs.StringVar(&mode, "mode", "", "Recipient mode: qBEAP (private) or pBEAP (public)")
	fs.StringVar(&subject, "subject", "", "Message subject")
	fs.StringVar(&body, "body", "", "Message body text")
	fs.StringVar(&bodyFile, "body-file", "", "Read message body from file instead of --body")
	fs.StringVar(&encryptedMessage, "encrypted-message", "", "Pre-encrypted content supplied for transport")
	fs.Var(&attachPaths, "attach", "Attachment file (repeatable)")
	fs.StringVar(&recipientHandshake, "recipient-handshake", "", "Resolved handshake ID of the recipient (qBEAP)")
	fs.StringVar(&recipientName, "recipient-name", "", "Recipient display name (qBEAP)")
	fs.StringVar(&recipientOrg, "recipient-org", "", "Recipient organization (qBEAP)")
	fs.StringVar(&sessionKeyHex, "session-key-hex", "", "32-byte handshake session key as 64 hex chars (qBEAP)")
	fs.StringVar(&templateID, "template", "", "Template identifier bound into the header")
	fs.StringVar(&policyPath, "policy", "", "Policy file whose hash is bound into the header")
	fs.StringVar(&hashAlg, "hash-alg", "", "Digest algorithm: sha256, sha3-256, or blake3 (default sha256)")
	fs.StringVar(&deliveryMethod, "delivery", string(beap.MethodDownload), "Delivery method: email, messenger, or download")
	fs.StringVar(&deliveryHint, "delivery-hint", "", "Free-form delivery hint (scanned for leaks)")
	fs.StringVar(&outPath, "out", "", "Write the .beap container to this file (default stdout)")
	fs.StringVar(&seedHex, "seed-hex", "", "ed25519 seed as 64 hex chars")
	fs.StringVar(&signerName, "signer", "", "Use a stored key by name (from 'beap key init')")
	fs.StringVar(&signerRole, "signer-role", "", "When using --signer, optionally use a derived role key")
	fs.StringVar(&keyFile, "key-file", "", "Path to a seed file (hex) created by 'beap key init/derive'")
	fs.BoolVar(&requireEncrypted, "require-encrypted", false, "Fail a qBEAP build with no encrypted message")
	fs.BoolVar(&tagsEncryptedOnly, "tags-encrypted-only", false, "Fail any build whose plaintext body carries automation tags")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if mode == "" {
		fmt.Fprintln(errOut, "missing --mode")
		return 2
	}
	if bodyFile != "" {
		if body != "" {
			fmt.Fprintln(errOut, "conflicting flags: --body cannot be combined with --body-file")
			return 2
		}
		b, err := os.ReadFile(bodyFile)
		if err != nil {
			fmt.Fprintf(errOut, "read --body-file: %v\n", err)
			return 1
		}
		body = string(b)
	}

	signer, code := loadSigner(seedHex, signerName, signerRole, keyFile, errOut)
	if code != 0 {
		return code
	}

	cfg := beap.BeapPackageConfig{
		Encoding:         beap.Encoding(mode),
		Signer:           signer,
		Subject:          subject,
		MessageBody:      body,
		EncryptedMessage: encryptedMessage,
		TemplateID:       templateID,
		HashAlg:          hashAlg,
		Delivery: beap.DeliveryMetadata{
			Method: beap.DeliveryMethod(deliveryMethod),
			Hint:   deliveryHint,
		},
		Build: beap.DraftBuildPolicy{
			RequiresEncryptedMessage:               requireEncrypted,
			RequiresPrivateTriggersInEncryptedOnly: tagsEncryptedOnly,
		},
	}

	if recipientHandshake != "" || sessionKeyHex != "" {
		sessionKey, err := hex.DecodeString(sessionKeyHex)
		if err != nil {
			fmt.Fprintf(errOut, "invalid --session-key-hex: %v\n", err)
			return 2
		}
		cfg.Recipient = &beap.Recipient{
			HandshakeID: recipientHandshake,
			DisplayName: recipientName,
			Org:         recipientOrg,
			SessionKey:  sessionKey,
		}
	}

	for _, path := range attachPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(errOut, "read --attach %s: %v\n", filepath.Base(path), err)
			return 1
		}
		cfg.Attachments = append(cfg.Attachments, beap.Attachment{Name: filepath.Base(path), Data: data})
	}

	if policyPath != "" {
		p, err := readPolicyFile(policyPath)
		if err != nil {
			fmt.Fprintf(errOut, "read --policy: %v\n", err)
			return 1
		}
		cfg.Policy = &p
	}

	res := beap.BuildPackage(cfg)
	if !res.Success {
		fmt.Fprintf(errOut, "build: %v\n", res.Err)
		return 1
	}

	fmt.Fprintf(errOut, "Content-Hash: %s\n", res.Package.Header.ContentHash)
	fmt.Fprintf(errOut, "Filename: %s\n", res.Package.Metadata.Filename)

	if outPath != "" {
		if err := os.WriteFile(outPath, res.PackageJSON, 0o644); err != nil {
			fmt.Fprintf(errOut, "write --out: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = out.Write(res.PackageJSON)
	_, _ = fmt.Fprintln(out)
	return 0
}

// openInbox opens the raw store and event log under storeDir (default
// ~/.beap/inbox). Each mirror directory becomes a named replica: writes land
// everywhere, reads fall back when the primary loses a block.
func openInbox(storeDir string, mirrorDirs []string) (storage.CAS, storage.AppendLog, error) {
	if storeDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, fmt.Errorf("home: %w", err)
		}
		storeDir = filepath.Join(home, ".beap", "inbox")
	}
	primary, err := localfs.NewCAS(filepath.Join(storeDir, "raw"))
	if err != nil {
		return nil, nil, fmt.Errorf("open raw store: %w", err)
	}
	log, err := localfs.NewLog(filepath.Join(storeDir, "events"))
	if err != nil {
		return nil, nil, fmt.Errorf("open event log: %w", err)
	}

	var cas storage.CAS = primary
	if len(mirrorDirs) > 0 {
		mirrors := make([]storage.Mirror, 0, len(mirrorDirs))
		for _, dir := range mirrorDirs {
			m, merr := localfs.NewCAS(dir)
			if merr != nil {
				return nil, nil, fmt.Errorf("open mirror %s: %w", dir, merr)
			}
			mirrors = append(mirrors, storage.Mirror{Name: dir, CAS: m})
		}
		cas, err = storage.NewReplicatingCAS(primary, mirrors...)
		if err != nil {
			return nil, nil, fmt.Errorf("mirror wiring: %w", err)
		}
	}
	return cas, log, nil
}

// replayInbox rebuilds the import registry from the event log so that a later
// invocation sees the items and verification states earlier ones recorded.
func replayInbox(storeDir string, mirrorDirs []string, policyPath string) (*ingress.Pipeline, error) {
	var p policy.CanonicalPolicy
	var err error
	if policyPath != "" {
		p, err = readPolicyFile(policyPath)
		if err != nil {
			return nil, fmt.Errorf("read --policy: %w", err)
		}
	} else {
		p, err = policy.NewDefaultPolicy(policy.LayerLocal, policy.TemplateStandard)
		if err != nil {
			return nil, fmt.Errorf("default policy: %w", err)
		}
	}
	cas, log, err := openInbox(storeDir, mirrorDirs)
	if err != nil {
		return nil, err
	}
	return ingress.Replay(&p, cas, log)
}

func cmdImport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var source string
	var sender string
	var filename string
	var policyPath string
	var storeDir string
	var mirrorDirs stringList

	fs.StringVar(&source, "source", string(ingress.SourceFileDrop), "Ingress channel: emailBridge, messengerPaste, fileDrop, or clipboard")
	fs.StringVar(&sender, "sender", "", "Claimed sender address (emailBridge only; recorded as an unverified hint)")
	fs.StringVar(&filename, "filename", "", "Original filename (defaults to the input file's name)")
	fs.StringVar(&policyPath, "policy", "", "Governing policy file (default: standard local template)")
	fs.StringVar(&storeDir, "store-dir", "", "Directory for the raw store and event log (default ~/.beap/inbox)")
	fs.Var(&mirrorDirs, "mirror-dir", "Replicate raw payloads into this directory as well (repeatable)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: beap import [flags] <file>")
		return 2
	}
	path := fs.Arg(0)
	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(path), err)
		return 1
	}
	if filename == "" {
		filename = filepath.Base(path)
	}

	var p policy.CanonicalPolicy
	if policyPath != "" {
		p, err = readPolicyFile(policyPath)
		if err != nil {
			fmt.Fprintf(errOut, "read --policy: %v\n", err)
			return 1
		}
	} else {
		p, err = policy.NewDefaultPolicy(policy.LayerLocal, policy.TemplateStandard)
		if err != nil {
			fmt.Fprintf(errOut, "default policy: %v\n", err)
			return 1
		}
	}

	cas, log, err := openInbox(storeDir, mirrorDirs)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	pl := ingress.NewPipeline(&p, cas, log)
	res := pl.ImportMessage(raw, ingress.Source(source), ingress.ImportOptions{
		SenderAddress: sender,
		Filename:      filename,
	})
	if !res.Success {
		fmt.Fprintf(errOut, "import rejected: %s\n", res.Error)
		return 1
	}
	fmt.Fprintf(out, "Outcome: %s\n", res.Outcome)
	if res.MessageID != "" {
		fmt.Fprintf(out, "Message-ID: %s\n", res.MessageID)
		fmt.Fprintf(out, "Event-ID: %s\n", res.EventID)
	}
	return 0
}

// cmdResolve records a verification outcome for an imported item. The
// decision is appended to the event log before the registry reflects it, so
// later invocations replay the same state.
func cmdResolve(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var accept bool
	var reject bool
	var policyPath string
	var storeDir string
	var mirrorDirs stringList

	fs.BoolVar(&accept, "accept", false, "Mark the item accepted")
	fs.BoolVar(&reject, "reject", false, "Mark the item rejected")
	fs.StringVar(&policyPath, "policy", "", "Governing policy file (default: standard local template)")
	fs.StringVar(&storeDir, "store-dir", "", "Directory for the raw store and event log (default ~/.beap/inbox)")
	fs.Var(&mirrorDirs, "mirror-dir", "Replicate raw payloads into this directory as well (repeatable)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if accept == reject {
		fmt.Fprintln(errOut, "exactly one of --accept or --reject is required")
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: beap resolve (--accept | --reject) [flags] <message-id>")
		return 2
	}

	pl, err := replayInbox(storeDir, mirrorDirs, policyPath)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	state := ingress.StateAccepted
	if reject {
		state = ingress.StateRejected
	}
	msgID := fs.Arg(0)
	if err := pl.ResolveVerification(msgID, state); err != nil {
		fmt.Fprintf(errOut, "resolve: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "%s: %s\n", msgID, state)
	return 0
}

func cmdAdmin(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printAdminUsage(errOut)
		return 2
	}
	switch args[0] {
	case "create":
		return cmdAdminCreate(args[1:], out, errOut)
	case "sign":
		return cmdAdminSign(args[1:], out, errOut)
	case "verify":
		return cmdAdminVerify(args[1:], out, errOut)
	case "apply":
		return cmdAdminApply(args[1:], out, errOut, false)
	case "rollback":
		return cmdAdminApply(args[1:], out, errOut, true)
	case "help", "-h", "--help":
		printAdminUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown admin subcommand: %s\n\n", args[0])
		printAdminUsage(errOut)
		return 2
	}
}

func printAdminUsage(w io.Writer) {
	fmt.Fprintln(w, "beap admin: admin policy package lifecycle (file-based)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  beap admin create --policy <file> [--creator <id>] [--priority <n>] [--all] [--node <id>]... [--group <g>]...")
	fmt.Fprintln(w, "  beap admin sign --pkg <file> (--seed-hex <64hex> | --signer <name> | --key-file <path>)")
	fmt.Fprintln(w, "  beap admin verify --pkg <file>")
	fmt.Fprintln(w, "  beap admin apply --pkg <file> --state-dir <dir>")
	fmt.Fprintln(w, "  beap admin rollback --pkg <file> --state-dir <dir>")
}

func readPackageFile(path string) (*admin.AdminPolicyPackage, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return admin.DecodePackage(b)
}

func writePackageFile(path string, pkg *admin.AdminPolicyPackage) error {
	b, err := admin.EncodePackage(pkg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func cmdAdminCreate(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("admin create", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var policyPath string
	var creator string
	var priority int
	var all bool
	var nodeIDs stringList
	var groups stringList
	var outPath string

	fs.StringVar(&policyPath, "policy", "", "Policy file to package")
	fs.StringVar(&creator, "creator", "", "Creator identity recorded in package metadata")
	fs.IntVar(&priority, "priority", 0, "Delivery priority (higher first)")
	fs.BoolVar(&all, "all", false, "Target every node")
	fs.Var(&nodeIDs, "node", "Target node ID (repeatable)")
	fs.Var(&groups, "group", "Target node group (repeatable)")
	fs.StringVar(&outPath, "out", "", "Write the package to this file (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if policyPath == "" {
		fmt.Fprintln(errOut, "missing --policy")
		return 2
	}
	if !all && len(nodeIDs) == 0 && len(groups) == 0 {
		fmt.Fprintln(errOut, "missing target: use --all, --node, or --group")
		return 2
	}
	p, err := readPolicyFile(policyPath)
	if err != nil {
		fmt.Fprintf(errOut, "read --policy: %v\n", err)
		return 1
	}

	pkg, err := admin.CreatePackage(&p, admin.TargetSelectors{
		All:     all,
		NodeIDs: nodeIDs,
		Groups:  groups,
	}, admin.PackageMetadata{
		Creator:  creator,
		Priority: priority,
	})
	if err != nil {
		fmt.Fprintf(errOut, "create package: %v\n", err)
		return 1
	}

	fmt.Fprintf(errOut, "Package-ID: %s\n", pkg.ID)
	if outPath != "" {
		if err := writePackageFile(outPath, pkg); err != nil {
			fmt.Fprintf(errOut, "write --out: %v\n", err)
			return 1
		}
		return 0
	}
	b, err := admin.EncodePackage(pkg)
	if err != nil {
		fmt.Fprintf(errOut, "encode package: %v\n", err)
		return 1
	}
	_, _ = out.Write(b)
	_, _ = fmt.Fprintln(out)
	return 0
}

func cmdAdminSign(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("admin sign", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var pkgPath string
	var seedHex string
	var signerName string
	var signerRole string
	var keyFile string

	fs.StringVar(&pkgPath, "pkg", "", "Package file to sign in place")
	fs.StringVar(&seedHex, "seed-hex", "", "ed25519 seed as 64 hex chars")
	fs.StringVar(&signerName, "signer", "", "Use a stored key by name (from 'beap key init')")
	fs.StringVar(&signerRole, "signer-role", "", "When using --signer, optionally use a derived role key")
	fs.StringVar(&keyFile, "key-file", "", "Path to a seed file (hex) created by 'beap key init/derive'")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if pkgPath == "" {
		fmt.Fprintln(errOut, "missing --pkg")
		return 2
	}
	signer, code := loadSigner(seedHex, signerName, signerRole, keyFile, errOut)
	if code != 0 {
		return code
	}
	pkg, err := readPackageFile(pkgPath)
	if err != nil {
		fmt.Fprintf(errOut, "read --pkg: %v\n", err)
		return 1
	}
	if err := admin.SignPackage(pkg, signer); err != nil {
		fmt.Fprintf(errOut, "sign package: %v\n", err)
		return 1
	}
	if err := writePackageFile(pkgPath, pkg); err != nil {
		fmt.Fprintf(errOut, "write --pkg: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Signed %s with key %s\n", pkg.ID, pkg.Signature.KeyID)
	return 0
}

func cmdAdminVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("admin verify", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var pkgPath string

	fs.StringVar(&pkgPath, "pkg", "", "Package file to verify")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if pkgPath == "" {
		fmt.Fprintln(errOut, "missing --pkg")
		return 2
	}
	pkg, err := readPackageFile(pkgPath)
	if err != nil {
		fmt.Fprintf(errOut, "read --pkg: %v\n", err)
		return 1
	}
	if err := admin.VerifyPackage(pkg, keys.PublicVerifier{}); err != nil {
		fmt.Fprintf(errOut, "verify: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, "OK")
	return 0
}

// cmdAdminApply verifies a package and makes its policy the active one for a
// local state directory: active-policy.json is replaced and an apply record
// is appended to the history log. Failed verification leaves both untouched.
// Rollback is the same forward apply of an earlier package, flagged in the
// history record.
func cmdAdminApply(args []string, out io.Writer, errOut io.Writer, rollback bool) int {
	name := "admin apply"
	if rollback {
		name = "admin rollback"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(errOut)

	var pkgPath string
	var stateDir string

	fs.StringVar(&pkgPath, "pkg", "", "Package file to apply")
	fs.StringVar(&stateDir, "state-dir", "", "Local policy state directory (default ~/.beap/policy)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if pkgPath == "" {
		fmt.Fprintln(errOut, "missing --pkg")
		return 2
	}
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(errOut, "home: %v\n", err)
			return 1
		}
		stateDir = filepath.Join(home, ".beap", "policy")
	}

	pkg, err := readPackageFile(pkgPath)
	if err != nil {
		fmt.Fprintf(errOut, "read --pkg: %v\n", err)
		return 1
	}
	if err := admin.VerifyPackage(pkg, keys.PublicVerifier{}); err != nil {
		fmt.Fprintf(errOut, "verify: %v\n", err)
		return 1
	}
	p, err := policy.Deserialize(pkg.PolicyPayload)
	if err != nil {
		fmt.Fprintf(errOut, "decode policy payload: %v\n", err)
		return 1
	}
	if res := policy.Validate(&p); !res.OK {
		for _, v := range res.Violations {
			fmt.Fprintf(errOut, "%s: %s\n", v.RuleID, v.Message)
		}
		return 1
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		fmt.Fprintf(errOut, "state dir: %v\n", err)
		return 1
	}
	if err := os.WriteFile(filepath.Join(stateDir, "active-policy.json"), pkg.PolicyPayload, 0o644); err != nil {
		fmt.Fprintf(errOut, "write active policy: %v\n", err)
		return 1
	}
	hist, err := localfs.NewLog(filepath.Join(stateDir, "history"))
	if err != nil {
		fmt.Fprintf(errOut, "open history log: %v\n", err)
		return 1
	}
	rec, err := json.Marshal(admin.ApplyRecord{
		PackageID:     pkg.ID,
		PolicyID:      p.ID,
		PolicyVersion: p.Version,
		AppliedAt:     time.Now().UTC(),
		Rollback:      rollback,
	})
	if err != nil {
		fmt.Fprintf(errOut, "encode history record: %v\n", err)
		return 1
	}
	if _, err := hist.Append(rec); err != nil {
		fmt.Fprintf(errOut, "append history: %v\n", err)
		return 1
	}

	if rollback {
		fmt.Fprintf(out, "Rolled back to %s (policy %s v%d)\n", pkg.ID, p.ID, p.Version)
	} else {
		fmt.Fprintf(out, "Applied %s (policy %s v%d)\n", pkg.ID, p.ID, p.Version)
	}
	return 0
}

func cmdBundle(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printBundleUsage(errOut)
		return 2
	}
	switch args[0] {
	case "export":
		return cmdBundleExport(args[1:], out, errOut)
	case "import":
		return cmdBundleImport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printBundleUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown bundle subcommand: %s\n\n", args[0])
		printBundleUsage(errOut)
		return 2
	}
}

func printBundleUsage(w io.Writer) {
	fmt.Fprintln(w, "beap bundle: exchange verified packages as tar bundles")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  beap bundle export [flags] <message-id>...")
	fmt.Fprintln(w, "  beap bundle import --backend <name> <file>")
	fmt.Fprintln(w, "  (backend flags vary; see --help of each backend)")
}

// cmdBundleExport packages accepted inbox items for transfer: each item's
// container object, its label, and for private packages the sealed capsule.
// Items that never passed verification refuse to export.
func cmdBundleExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("bundle export", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var outPath string
	var policyPath string
	var storeDir string
	var mirrorDirs stringList

	fs.StringVar(&outPath, "out", "", "Write the bundle to this file (default stdout)")
	fs.StringVar(&policyPath, "policy", "", "Governing policy file (default: standard local template)")
	fs.StringVar(&storeDir, "store-dir", "", "Directory for the raw store and event log (default ~/.beap/inbox)")
	fs.Var(&mirrorDirs, "mirror-dir", "Replicate raw payloads into this directory as well (repeatable)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(errOut, "usage: beap bundle export [flags] <message-id>...")
		return 2
	}

	pl, err := replayInbox(storeDir, mirrorDirs, policyPath)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	var w io.Writer = out
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			fmt.Fprintf(errOut, "create --out: %v\n", err)
			return 1
		}
		defer f.Close()
		w = f
	}
	if err := pl.ExportBundle(w, fs.Args()); err != nil {
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	return 0
}

func cmdBundleImport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("bundle import", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var backend string

	fs.StringVar(&backend, "backend", "localfs", "Storage backend name")
	registry.RegisterFlags(fs, registry.UsageCLI)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: beap bundle import --backend <name> <file>")
		return 2
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "open bundle: %v\n", err)
		return 1
	}
	defer f.Close()

	cas, closeFn, err := registry.Open(backend, registry.UsageCLI)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if closeFn != nil {
		defer closeFn()
	}

	if err := bundle.Import(f, cas); err != nil {
		fmt.Fprintf(errOut, "import: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, "OK")
	return 0
}
