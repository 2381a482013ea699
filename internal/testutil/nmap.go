package testutil

// NmapPortScanXML is the output of a port scan of 127.0.0.1 with port 22
// open (ssh) and port 80 closed.
const NmapPortScanXML = `<?xml version="1.0" encoding="UTF-8"?>
<nmaprun scanner="nmap" args="nmap -sT -p 22,80 -oX - 127.0.0.1" start="1714566645" startstr="Wed May  1 12:30:45 2024" version="7.94" xmloutputversion="1.05">
<host starttime="1714566645" endtime="1714566646">
<status state="up" reason="conn-refused" reason_ttl="0"/>
<address addr="127.0.0.1" addrtype="ipv4"/>
<hostnames><hostname name="localhost" type="PTR"/></hostnames>
<ports>
<port protocol="tcp" portid="22"><state state="open" reason="syn-ack" reason_ttl="0"/><service name="ssh" product="OpenSSH" version="8.9p1" extrainfo="Ubuntu" method="table" conf="10"/></port>
<port protocol="tcp" portid="80"><state state="closed" reason="conn-refused" reason_ttl="0"/><service name="http" method="table" conf="3"/></port>
</ports>
</host>
<runstats><finished time="1714566646" timestr="Wed May  1 12:30:46 2024" summary="Nmap done" elapsed="0.50" exit="success"/><hosts up="1" down="0" total="1"/></runstats>
</nmaprun>
`

// NmapVulnScanXML is a `--script vuln` run with one vulnerable SMB host
// script, one vulnerable port script and one informational port script.
const NmapVulnScanXML = `<?xml version="1.0" encoding="UTF-8"?>
<nmaprun scanner="nmap" args="nmap --script vuln" start="1714566645" version="7.94" xmloutputversion="1.05">
<host starttime="1714566645" endtime="1714566650">
<status state="up" reason="syn-ack" reason_ttl="0"/>
<address addr="10.0.0.5" addrtype="ipv4"/>
<ports>
<port protocol="tcp" portid="80"><state state="open" reason="syn-ack" reason_ttl="0"/><service name="http" product="Apache httpd" version="2.4.49"/>
<script id="http-vuln-cve2021-41773" output="&#xa;  VULNERABLE:&#xa;  Apache 2.4.49 path traversal, remote code execution&#xa;    State: VULNERABLE"/>
<script id="http-title" output="Index of /"/>
</port>
<port protocol="tcp" portid="443"><state state="open" reason="syn-ack" reason_ttl="0"/><service name="https" tunnel="ssl"/>
<script id="http-title" output="Welcome"/>
</port>
<port protocol="tcp" portid="445"><state state="open" reason="syn-ack" reason_ttl="0"/><service name="microsoft-ds"/></port>
</ports>
<hostscript>
<script id="smb-vuln-ms17-010" output="&#xa;  VULNERABLE:&#xa;  Remote Code Execution vulnerability in Microsoft SMBv1 servers (ms17-010)&#xa;    State: VULNERABLE"/>
</hostscript>
</host>
<runstats><finished time="1714566650" timestr="Wed May  1 12:30:50 2024" summary="Nmap done" elapsed="5.00" exit="success"/><hosts up="1" down="0" total="1"/></runstats>
</nmaprun>
`

// NmapEmptyXML is a run that found no hosts.
const NmapEmptyXML = `<?xml version="1.0" encoding="UTF-8"?>
<nmaprun scanner="nmap" args="nmap -sn 10.9.9.9" start="1714566645" version="7.94" xmloutputversion="1.05">
<runstats><finished time="1714566646" timestr="Wed May  1 12:30:46 2024" summary="Nmap done" elapsed="1.00" exit="success"/><hosts up="0" down="1" total="1"/></runstats>
</nmaprun>
`

// NmapDiscoveryXML is a ping sweep with two live hosts.
const NmapDiscoveryXML = `<?xml version="1.0" encoding="UTF-8"?>
<nmaprun scanner="nmap" args="nmap -sn 192.168.1.0/30" start="1714566645" version="7.94" xmloutputversion="1.05">
<host><status state="up" reason="arp-response" reason_ttl="0"/><address addr="192.168.1.1" addrtype="ipv4"/><address addr="AA:BB:CC:DD:EE:FF" addrtype="mac" vendor="Acme"/><hostnames><hostname name="router.lan" type="PTR"/></hostnames></host>
<host><status state="up" reason="arp-response" reason_ttl="0"/><address addr="192.168.1.2" addrtype="ipv4"/></host>
<runstats><finished time="1714566646" timestr="Wed May  1 12:30:46 2024" summary="Nmap done" elapsed="1.00" exit="success"/><hosts up="2" down="2" total="4"/></runstats>
</nmaprun>
`
