package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name          string
		yamlContent   string
		expectError   bool
		expectedError string
	}{
		{
			name: "valid full config",
			yamlContent: `
sign:
  key_file: "developer-id.key"
  cert_file: "developer-id.pem"
  entitlements: "entitlements.plist"
notarize:
  api_key_file: "api-key.json"
  poll_interval: "15s"
  max_wait: "2h"
  query_retries: 0
staple:
  retries: 5
  delay: "5s"
  assess: true
dmg:
  volume_name: "Demo"
  overwrite: true
tools:
  rcodesign: "/opt/bin/rcodesign"
`,
			expectError: false,
		},
		{
			name: "partial config loads successfully",
			yamlContent: `
sign:
  p12_file: "identity.p12"
`,
			expectError: false,
		},
		{
			name:        "empty file",
			yamlContent: "",
			expectError: false,
		},
		{
			name: "unknown field",
			yamlContent: `
sign:
  identity: "Developer ID Application"
`,
			expectError:   true,
			expectedError: "failed to parse config",
		},
		{
			name: "invalid YAML",
			yamlContent: `
sign:
  key_file: "a"
  invalid_yaml: [unclosed array
`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpFile := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(tmpFile, []byte(tt.yamlContent), 0644); err != nil {
				t.Fatalf("Failed to create temporary config file: %v", err)
			}

			config, err := LoadConfig(tmpFile)

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				} else if tt.expectedError != "" && !strings.Contains(err.Error(), tt.expectedError) {
					t.Errorf("Expected error containing %q, got %v", tt.expectedError, err)
				}
				return
			}

			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}

			if config == nil {
				t.Error("Expected config but got nil")
				return
			}

			// Defaults are always applied
			if config.Tools.Xcrun == "" || config.Notarize.MaxWait == "" || config.Staple.Retries == nil {
				t.Errorf("defaults not applied: %+v", config)
			}
		})
	}
}

func TestLoadConfigKeepsExplicitZero(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(tmpFile, []byte("notarize:\n  query_retries: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	config, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if got := IntValue(config.Notarize.QueryRetries, -1); got != 0 {
		t.Errorf("query_retries = %d, want 0", got)
	}
	if got := IntValue(config.Staple.Retries, -1); got != DefaultStapleRetries {
		t.Errorf("staple.retries = %d, want %d", got, DefaultStapleRetries)
	}
}

func TestLoad(t *testing.T) {
	missing := filepath.Join(t.TempDir(), ".renotize.yaml")

	config, err := Load(missing, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if config.Notarize.PollInterval != DefaultPollInterval {
		t.Errorf("PollInterval = %q, want default", config.Notarize.PollInterval)
	}

	if _, err := Load(missing, true); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		value   string
		want    time.Duration
		wantErr bool
	}{
		{value: "", want: time.Minute},
		{value: "90s", want: 90 * time.Second},
		{value: "1h30m", want: 90 * time.Minute},
		{value: "soon", wantErr: true},
	}

	for _, tt := range tests {
		got, err := Duration(tt.value, "notarize.max_wait", time.Minute)
		if (err != nil) != tt.wantErr {
			t.Errorf("Duration(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			continue
		}
		if err != nil && !strings.Contains(err.Error(), "notarize.max_wait") {
			t.Errorf("Duration(%q) error = %v, want field name", tt.value, err)
		}
		if got != tt.want {
			t.Errorf("Duration(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestSaveConfig(t *testing.T) {
	config := ExampleConfig()

	tmpFile := filepath.Join(t.TempDir(), "saved.yaml")
	if err := SaveConfig(tmpFile, config); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	info, err := os.Stat(tmpFile)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected mode 0600, got %o", info.Mode().Perm())
	}

	loadedConfig, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if loadedConfig.Sign.KeyFile != config.Sign.KeyFile {
		t.Errorf("Expected key file %s, got %s", config.Sign.KeyFile, loadedConfig.Sign.KeyFile)
	}
	if loadedConfig.DMG.VolumeName != config.DMG.VolumeName {
		t.Errorf("Expected volume name %s, got %s", config.DMG.VolumeName, loadedConfig.DMG.VolumeName)
	}
	if !loadedConfig.Staple.Assess {
		t.Error("Expected staple.assess to survive a round trip")
	}

	if err := SaveConfig(tmpFile, nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestEnvironmentVariableSubstitution(t *testing.T) {
	t.Setenv("TEST_ISSUER", "69a6de70-03db-47e3-e053-5b8c7c11a4d1")

	yamlContent := `
sign:
  key_password: "env(TEST_KEY_PASSWORD_UNSET:-)"
notarize:
  issuer_id: "env(TEST_ISSUER)"
  key_id: "env(TEST_KEY_ID_UNSET)"
`

	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to create temporary config file: %v", err)
	}

	config, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if config.Notarize.IssuerID != "69a6de70-03db-47e3-e053-5b8c7c11a4d1" {
		t.Errorf("Expected substituted issuer ID, got %s", config.Notarize.IssuerID)
	}
	if config.Sign.KeyPassword != "" {
		t.Errorf("Expected empty default for key password, got %q", config.Sign.KeyPassword)
	}
	if config.Notarize.KeyID != "env(TEST_KEY_ID_UNSET)" {
		t.Errorf("Expected unresolved reference to be kept, got %s", config.Notarize.KeyID)
	}
}

func TestLoadConfigSecurity(t *testing.T) {
	tests := []struct {
		name          string
		setupFunc     func(t *testing.T) string
		expectError   bool
		errorContains string
	}{
		{
			name: "path traversal attempt via parent directory",
			setupFunc: func(t *testing.T) string {
				// Create a temporary directory structure
				tmpDir := t.TempDir()
				configDir := filepath.Join(tmpDir, "config")
				if err := os.MkdirAll(configDir, 0755); err != nil {
					t.Fatalf("Failed to create config directory: %v", err)
				}

				// Return path with traversal attempt - this will fail because
				// the path escapes the working directory and the file doesn't exist
				return configDir + "/../../etc/passwd"
			},
			expectError:   true,
			errorContains: "no such file or directory",
		},
		{
			name: "symlink to valid config is allowed",
			setupFunc: func(t *testing.T) string {
				tmpDir := t.TempDir()

				// Create a valid config file
				configFile := filepath.Join(tmpDir, "real-config.yaml")
				if err := os.WriteFile(configFile, []byte("dmg:\n  volume_name: TestApp\n"), 0644); err != nil {
					t.Fatalf("Failed to write config file: %v", err)
				}

				// Create a symlink pointing to the config file
				configDir := filepath.Join(tmpDir, "config")
				if err := os.MkdirAll(configDir, 0755); err != nil {
					t.Fatalf("Failed to create config directory: %v", err)
				}
				symlinkPath := filepath.Join(configDir, "config.yaml")
				if err := os.Symlink(configFile, symlinkPath); err != nil {
					t.Fatalf("Failed to create symlink: %v", err)
				}

				return symlinkPath
			},
			expectError:   false,
			errorContains: "",
		},
		{
			name: "directory instead of file",
			setupFunc: func(t *testing.T) string {
				tmpDir := t.TempDir()
				configDir := filepath.Join(tmpDir, "config.yaml")
				if err := os.MkdirAll(configDir, 0755); err != nil {
					t.Fatalf("Failed to create config directory: %v", err)
				}
				return configDir
			},
			expectError:   true,
			errorContains: "not a regular file",
		},
		{
			name: "file too large",
			setupFunc: func(t *testing.T) string {
				tmpDir := t.TempDir()
				configFile := filepath.Join(tmpDir, "config.yaml")

				// Create a file larger than 1MB
				largeContent := make([]byte, 1024*1024+1)
				if err := os.WriteFile(configFile, largeContent, 0644); err != nil {
					t.Fatalf("Failed to write large config file: %v", err)
				}

				return configFile
			},
			expectError:   true,
			errorContains: "too large",
		},
		{
			name: "valid config file",
			setupFunc: func(t *testing.T) string {
				tmpDir := t.TempDir()
				configFile := filepath.Join(tmpDir, "config.yaml")
				if err := os.WriteFile(configFile, []byte("dmg:\n  volume_name: TestApp\n"), 0644); err != nil {
					t.Fatalf("Failed to write config file: %v", err)
				}
				return configFile
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := tt.setupFunc(t)
			_, err := LoadConfig(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
					return
				}
				if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Expected error containing %q but got: %v", tt.errorContains, err)
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
			}
		})
	}
}
