package resource

import (
	"bytes"
	"compress/gzip"
	"crypto/rand"
	"fmt"
	"math/big"
	"text/template"
)

// MaxUserDataBytes is the provider's limit on the compressed payload.
const MaxUserDataBytes = 16384

// passwordAlphabet feeds the generated database password.
const passwordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*"

const passwordLength = 32

// UserDataParams parameterise the instance initialisation script.
type UserDataParams struct {
	Stack  string
	Tier   string
	Region string

	FilesystemID  string
	FilesystemDNS string
	// FilesystemIP mounts by address when DNS resolution inside the VPC is
	// not yet settled.
	FilesystemIP string

	// DatabasePassword is generated when empty.
	DatabasePassword string

	// ContainerImages overrides the default image references per service.
	ContainerImages map[string]string

	// EnableGPU installs the container runtime's GPU hooks.
	EnableGPU bool
}

var userDataTemplate = template.Must(template.New("userdata").Parse(`#!/bin/bash
set -euo pipefail

STACK_NAME="{{.Stack}}"
TIER="{{.Tier}}"
REGION="{{.Region}}"
EFS_ID="{{.FilesystemID}}"
EFS_DNS="{{.FilesystemDNS}}"
EFS_IP="{{.FilesystemIP}}"
POSTGRES_PASSWORD="{{.DatabasePassword}}"

exec > >(tee /var/log/geusemaker-init.log) 2>&1
echo "geusemaker init: stack=${STACK_NAME} tier=${TIER} region=${REGION}"

if command -v dnf >/dev/null 2>&1; then
  dnf install -y docker amazon-efs-utils nfs-utils
else
  apt-get update -y
  apt-get install -y docker.io nfs-common
fi
systemctl enable --now docker

curl -fsSL -o /usr/local/bin/docker-compose \
  "https://github.com/docker/compose/releases/latest/download/docker-compose-linux-$(uname -m)"
chmod +x /usr/local/bin/docker-compose
{{if .EnableGPU}}
if command -v dnf >/dev/null 2>&1; then
  dnf install -y nvidia-container-toolkit || true
fi
nvidia-ctk runtime configure --runtime=docker || true
systemctl restart docker
{{end}}
mkdir -p /mnt/efs
if ! mount -t efs -o tls "${EFS_ID}":/ /mnt/efs 2>/dev/null; then
  MOUNT_HOST="${EFS_IP:-${EFS_DNS}}"
  mount -t nfs4 -o nfsvers=4.1,rsize=1048576,wsize=1048576,hard,timeo=600,retrans=2 \
    "${MOUNT_HOST}":/ /mnt/efs
fi
echo "${EFS_ID}:/ /mnt/efs efs _netdev,tls 0 0" >> /etc/fstab
mkdir -p /mnt/efs/{n8n,postgres,ollama,qdrant,crawl4ai}

mkdir -p /opt/geusemaker
cat > /opt/geusemaker/.env <<ENV
STACK_NAME=${STACK_NAME}
TIER=${TIER}
REGION=${REGION}
POSTGRES_PASSWORD=${POSTGRES_PASSWORD}
ENV
chmod 600 /opt/geusemaker/.env

cat > /opt/geusemaker/docker-compose.yml <<'COMPOSE'
services:
  postgres:
    image: {{index .ContainerImages "postgres"}}
    restart: unless-stopped
    environment:
      POSTGRES_PASSWORD: ${POSTGRES_PASSWORD}
      POSTGRES_DB: n8n
    volumes:
      - /mnt/efs/postgres:/var/lib/postgresql/data
    ports:
      - "5432:5432"
  n8n:
    image: {{index .ContainerImages "n8n"}}
    restart: unless-stopped
    environment:
      DB_TYPE: postgresdb
      DB_POSTGRESDB_HOST: postgres
      DB_POSTGRESDB_PASSWORD: ${POSTGRES_PASSWORD}
    volumes:
      - /mnt/efs/n8n:/home/node/.n8n
    ports:
      - "5678:5678"
    depends_on:
      - postgres
  ollama:
    image: {{index .ContainerImages "ollama"}}
    restart: unless-stopped
    volumes:
      - /mnt/efs/ollama:/root/.ollama
    ports:
      - "11434:11434"
  qdrant:
    image: {{index .ContainerImages "qdrant"}}
    restart: unless-stopped
    volumes:
      - /mnt/efs/qdrant:/qdrant/storage
    ports:
      - "6333:6333"
  crawl4ai:
    image: {{index .ContainerImages "crawl4ai"}}
    restart: unless-stopped
    ports:
      - "11235:11235"
COMPOSE

cd /opt/geusemaker
docker-compose --env-file .env up -d
echo "geusemaker init: done"
`))

// DefaultContainerImages are the bundled service images rolled out when the
// caller does not pin references.
var DefaultContainerImages = map[string]string{
	"n8n":      "docker.n8n.io/n8nio/n8n:latest",
	"postgres": "postgres:16-alpine",
	"ollama":   "ollama/ollama:latest",
	"qdrant":   "qdrant/qdrant:latest",
	"crawl4ai": "unclecode/crawl4ai:latest",
}

// GeneratePassword returns a high-entropy password drawn uniformly from the
// script alphabet.
func GeneratePassword() (string, error) {
	buf := make([]byte, passwordLength)
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating password: %w", err)
		}
		buf[i] = passwordAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// RenderUserData renders the initialisation script and gzips it. The
// compressed payload must fit the provider limit; exceeding it is a hard
// failure because truncation would launch a half-initialised instance.
func RenderUserData(params UserDataParams) ([]byte, error) {
	if params.DatabasePassword == "" {
		pw, err := GeneratePassword()
		if err != nil {
			return nil, err
		}
		params.DatabasePassword = pw
	}
	images := make(map[string]string, len(DefaultContainerImages))
	for name, ref := range DefaultContainerImages {
		images[name] = ref
	}
	for name, ref := range params.ContainerImages {
		images[name] = ref
	}
	params.ContainerImages = images

	var script bytes.Buffer
	if err := userDataTemplate.Execute(&script, params); err != nil {
		return nil, fmt.Errorf("rendering user data: %w", err)
	}

	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	if _, err := gz.Write(script.Bytes()); err != nil {
		return nil, fmt.Errorf("compressing user data: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("compressing user data: %w", err)
	}
	if compressed.Len() > MaxUserDataBytes {
		return nil, fmt.Errorf("user data is %d bytes compressed, limit is %d", compressed.Len(), MaxUserDataBytes)
	}
	return compressed.Bytes(), nil
}
