package flagx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

var clientFlags = []string{"-a", "-k", "-d", "-f", "-q", "-l", "-x", "-s", "-i"}

func TestFilterArgs_ClientCommandLine(t *testing.T) {
	cases := map[string]struct {
		args []string
		want []string
	}{
		"subcommand and its own flags dropped": {
			args: []string{"upload", "--verbose", "-a", "bulletins.example:8443", "-f", "keypair.dat"},
			want: []string{"-a", "bulletins.example:8443", "-f", "keypair.dat"},
		},
		"equals form kept whole": {
			args: []string{"-d=client.db", "retrieve", "-q=hqkey"},
			want: []string{"-d=client.db", "-q=hqkey"},
		},
		"equals form of a foreign flag dropped": {
			args: []string{"--passphrase=secret", "-s", "4096"},
			want: []string{"-s", "4096"},
		},
		"trailing flag without value": {
			args: []string{"export", "%OutBox", "-x"},
			want: []string{"-x"},
		},
		"next flag never taken as value": {
			args: []string{"-k", "-i", "30"},
			want: []string{"-k", "-i", "30"},
		},
		"negative looking value is a flag": {
			args: []string{"-s", "-1"},
			want: []string{"-s"},
		},
		"positional arguments ignored": {
			args: []string{"search", "checkpoint", "2024-01-01"},
			want: []string{},
		},
		"nothing to filter": {
			args: nil,
			want: []string{},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, FilterArgs(tc.args, clientFlags))
		})
	}
}

func TestFilterArgs_ServerMirrorFlags(t *testing.T) {
	args := []string{"-r", "m1:7000,m2:7000", "-i", "15", "-w", "open sesame", "-t", "/var/staging"}
	assert.Equal(t, []string{"-r", "m1:7000,m2:7000", "-i", "15"}, FilterArgs(args, []string{"-r", "-i"}))
}

func TestConfigPath(t *testing.T) {
	cases := map[string]struct {
		args []string
		want string
	}{
		"short flag":              {[]string{"-a", ":8443", "-c", "server.json"}, "server.json"},
		"long flag equals form":   {[]string{"-config=client.json", "upload"}, "client.json"},
		"later flag wins":         {[]string{"-c", "first.json", "-config", "second.json"}, "second.json"},
		"absent":                  {[]string{"-k", "keypair.dat"}, ""},
		"missing value tolerated": {[]string{"-c"}, ""},
		"no arguments":            {nil, ""},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, ConfigPath(tc.args))
		})
	}
}

func TestJsonConfigFlags_ReadsProcessArgs(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	os.Args = []string{"bulletin-server", "-w", "magic", "-c", "/etc/bulletins/server.json"}
	assert.Equal(t, "/etc/bulletins/server.json", JsonConfigFlags())

	os.Args = []string{"bulletin-server"}
	assert.Empty(t, JsonConfigFlags())
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"mirror-a:7000", "mirror-b:7000"}, SplitList(" mirror-a:7000, ,mirror-b:7000 ,"))
	assert.Equal(t, []string{"solo:7000"}, SplitList("solo:7000"))
	assert.Nil(t, SplitList(""))
	assert.Nil(t, SplitList(" , ,"))
}
