// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package certutil generates self-signed certificates for servers that
// have no operator provided certificate, based on
// https://golang.org/src/crypto/tls/generate_cert.go.
package certutil

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"
)

// SelfSignedCert specifies a self-signed certificate to be generated.
// If ECDSACurve is set an ECDSA key is generated, otherwise RSA with
// RSABits is used.
type SelfSignedCert struct {
	Hosts        []string
	Organization []string
	ValidFrom    time.Time
	ValidFor     time.Duration
	RSABits      int
	ECDSACurve   elliptic.Curve
}

func RSASelfSignedCert() *SelfSignedCert {
	return &SelfSignedCert{
		Hosts:        []string{"localhost"},
		Organization: []string{"CrawlForge Inc."},
		ValidFrom:    time.Now(),
		ValidFor:     365 * 24 * time.Hour,
		RSABits:      2048,
	}
}

func ECDSASelfSignedCert() *SelfSignedCert {
	return &SelfSignedCert{
		Hosts:        []string{"localhost"},
		Organization: []string{"CrawlForge Inc."},
		ValidFrom:    time.Now(),
		ValidFor:     365 * 24 * time.Hour,
		ECDSACurve:   elliptic.P256(),
	}
}

func (c *SelfSignedCert) Gen() (tls.Certificate, error) {
	var cert tls.Certificate

	priv, err := c.generateKey()
	if err != nil {
		return cert, fmt.Errorf("generate private key: %w", err)
	}

	keyUsage := x509.KeyUsageDigitalSignature
	// Only RSA subject keys should have the KeyEncipherment KeyUsage
	// bits set, in the context of TLS this KeyUsage is particular to
	// RSA key exchange and authentication.
	if _, isRSA := priv.(*rsa.PrivateKey); isRSA {
		keyUsage |= x509.KeyUsageKeyEncipherment
	}

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return cert, fmt.Errorf("generate serial number: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: c.Organization,
		},
		NotBefore: c.ValidFrom,
		NotAfter:  c.ValidFrom.Add(c.ValidFor),

		KeyUsage:              keyUsage,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	for _, h := range c.Hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, priv.Public(), priv)
	if err != nil {
		return cert, fmt.Errorf("create certificate: %w", err)
	}
	cert.Certificate = [][]byte{derBytes}
	cert.PrivateKey = priv

	return cert, nil
}

func (c *SelfSignedCert) generateKey() (crypto.Signer, error) {
	if c.ECDSACurve != nil {
		return ecdsa.GenerateKey(c.ECDSACurve, rand.Reader)
	}
	return rsa.GenerateKey(rand.Reader, c.RSABits)
}
