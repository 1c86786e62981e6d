package feed

// The 800-53 rev4 Appendix J privacy families and controls are published
// only in the PDF, so they are carried here.

var PrivacyFamilies = []FamilyEntry{
	{Acronym: "AP", Description: "Authority and Purpose"},
	{Acronym: "AR", Description: "Accountability, Audit, and Risk Management"},
	{Acronym: "DI", Description: "Data Quality and Integrity"},
	{Acronym: "DM", Description: "Data Minimization and Retention"},
	{Acronym: "IP", Description: "Individual Participation and Redress"},
	{Acronym: "SE", Description: "Security"},
	{Acronym: "TR", Description: "Transparency"},
	{Acronym: "UL", Description: "Use Limitation"},
}

var PrivacyControls = []ControlEntry{
	{Number: "AP-1", Title: "AUTHORITY TO COLLECT"},
	{Number: "AP-2", Title: "PURPOSE SPECIFICATION"},
	{Number: "AR-1", Title: "GOVERNANCE AND PRIVACY PROGRAM"},
	{Number: "AR-2", Title: "PRIVACY IMPACT AND RISK ASSESSMENT"},
	{Number: "AR-3", Title: "PRIVACY REQUIREMENTS FOR CONTRACTORS AND SERVICE PROVIDERS"},
	{Number: "AR-4", Title: "PRIVACY MONITORING AND AUDITING"},
	{Number: "AR-5", Title: "PRIVACY AWARENESS AND TRAINING"},
	{Number: "AR-6", Title: "PRIVACY REPORTING"},
	{Number: "AR-7", Title: "PRIVACY-ENHANCED SYSTEM DESIGN AND DEVELOPMENT"},
	{Number: "AR-8", Title: "ACCOUNTING OF DISCLOSURES"},
	{Number: "DI-1", Title: "DATA QUALITY"},
	{Number: "DI-1 (1)", Title: "DATA QUALITY | VALIDATE PII"},
	{Number: "DI-1 (2)", Title: "DATA QUALITY | RE-VALIDATE PII"},
	{Number: "DI-2", Title: "DATA INTEGRITY AND DATA INTEGRITY BOARD"},
	{Number: "DI-2 (1)", Title: "DATA INTEGRITY AND DATA INTEGRITY BOARD | PUBLISH AGREEMENTS ON WEBSITE"},
	{Number: "DM-1", Title: "MINIMIZATION OF PERSONALLY IDENTIFIABLE INFORMATION"},
	{Number: "DM-1 (1)", Title: "MINIMIZATION OF PERSONALLY IDENTIFIABLE INFORMATION | LOCATE / REMOVE / REDACT / ANONYMIZE PII"},
	{Number: "DM-2", Title: "DATA RETENTION AND DISPOSAL"},
	{Number: "DM-2 (1)", Title: "DATA RETENTION AND DISPOSAL | SYSTEM CONFIGURATION"},
	{Number: "DM-3", Title: "MINIMIZATION OF PII USED IN TESTING, TRAINING, AND RESEARCH"},
	{Number: "DM-3 (1)", Title: "MINIMIZATION OF PII USED IN TESTING, TRAINING, AND RESEARCH | RISK MINIMIZATION TECHNIQUES"},
	{Number: "IP-1", Title: "CONSENT"},
	{Number: "IP-1 (1)", Title: "CONSENT | MECHANISMS SUPPORTING ITEMIZED OR TIERED CONSENT"},
	{Number: "IP-2", Title: "INDIVIDUAL ACCESS"},
	{Number: "IP-3", Title: "REDRESS"},
	{Number: "IP-4", Title: "COMPLAINT MANAGEMENT"},
	{Number: "IP-4 (1)", Title: "COMPLAINT MANAGEMENT | RESPONSE TIMES"},
	{Number: "SE-1", Title: "INVENTORY OF PERSONALLY IDENTIFIABLE INFORMATION"},
	{Number: "SE-2", Title: "PRIVACY INCIDENT RESPONSE"},
	{Number: "TR-1", Title: "PRIVACY NOTICE"},
	{Number: "TR-1 (1)", Title: "PRIVACY NOTICE | REAL-TIME OR LAYERED NOTICE"},
	{Number: "TR-2", Title: "SYSTEM OF RECORDS NOTICES AND PRIVACY ACT STATEMENTS"},
	{Number: "TR-2 (1)", Title: "SYSTEM OF RECORDS NOTICES AND PRIVACY ACT STATEMENTS | PUBLIC WEBSITE PUBLICATION"},
	{Number: "TR-3", Title: "DISSEMINATION OF PRIVACY PROGRAM INFORMATION"},
	{Number: "UL-1", Title: "INTERNAL USE"},
	{Number: "UL-2", Title: "INFORMATION SHARING WITH THIRD PARTIES"},
}
